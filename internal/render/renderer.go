// Package render converts one cycle's analysis results into channel-agnostic
// content blocks.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/trendwire/trendwire/internal/models"
)

// Input carries everything one render pass may use. Every field is optional;
// missing data shrinks the output instead of failing it.
type Input struct {
	Stats          []models.StatEntry
	RSSStats       []models.RSSEntry
	AI             *models.AIResult
	Portfolio      []models.PortfolioHolding
	Standalone     *models.StandaloneData
	HistorySummary *models.HistorySummary
}

// defaultRankThreshold is the highest rank still highlighted as a top
// position in the hot-topics block.
const defaultRankThreshold = 5

// Renderer renders content blocks for one report cycle.
type Renderer struct {
	now           func() time.Time
	rankThreshold int
}

// Option adjusts renderer behavior.
type Option func(*Renderer)

// WithRankThreshold sets the best-rank cutoff for highlighting.
func WithRankThreshold(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.rankThreshold = n
		}
	}
}

// New returns a renderer using the given clock.
func New(now func() time.Time, opts ...Option) *Renderer {
	if now == nil {
		now = time.Now
	}
	r := &Renderer{now: now, rankThreshold: defaultRankThreshold}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the named content blocks. Blocks whose source data is
// empty are omitted from the map entirely.
func (r *Renderer) Render(in Input) map[string]models.ContentBlock {
	out := make(map[string]models.ContentBlock)

	add := func(key, text string, atomic bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		out[key] = models.ContentBlock{
			Key:      key,
			Text:     strings.TrimSpace(text),
			Priority: models.BlockPriority(key),
			Atomic:   atomic,
		}
	}

	add(models.BlockHotTopics, r.renderHotTopics(in.Stats), false)
	add(models.BlockRSSItems, renderRSSItems(in.RSSStats), false)
	add(models.BlockStandalone, renderStandalone(in.Standalone), false)
	add(models.BlockAIAnalysis, renderAIAnalysis(in.AI), true)
	add(models.BlockPortfolio, renderPortfolio(in.Portfolio, in.Stats), false)
	add(models.BlockTrendCompare, renderTrendCompare(in.HistorySummary, in.AI), false)

	return out
}

func (r *Renderer) renderHotTopics(stats []models.StatEntry) string {
	if len(stats) == 0 {
		return ""
	}

	var body []string
	totalDisplay := 0
	for _, stat := range stats {
		if len(stat.Titles) == 0 {
			continue
		}
		display := len(stat.Titles)
		totalDisplay += display

		if stat.Count != display {
			body = append(body, fmt.Sprintf("【%s】（%d条/原始%d条）", stat.Word, display, stat.Count))
		} else {
			body = append(body, fmt.Sprintf("【%s】（%d条）", stat.Word, display))
		}

		for _, item := range stat.Titles {
			var parts []string
			if item.SourceName != "" {
				parts = append(parts, item.SourceName)
			}
			if item.TimeDisplay != "" {
				parts = append(parts, item.TimeDisplay)
			}
			if best := item.BestRank(); best > 0 {
				pos := fmt.Sprintf("第%d位", best)
				if best <= r.rankThreshold {
					pos = "**" + pos + "**"
				}
				parts = append(parts, pos)
			}
			if item.IsNew {
				parts = append(parts, "🆕")
			}

			info := ""
			if len(parts) > 0 {
				info = "（" + strings.Join(parts, " | ") + "）"
			}
			body = append(body, "  - "+truncate(item.Title, 60)+info)
		}
		body = append(body, "")
	}

	if totalDisplay == 0 {
		return ""
	}

	lines := []string{
		"🔥 **分领域重点新闻**",
		"时间：" + r.now().Format("2006-01-02 15:04"),
		fmt.Sprintf("总计：%d条重点新闻", totalDisplay),
		"",
	}
	lines = append(lines, body...)
	return strings.Join(lines, "\n")
}

func renderRSSItems(entries []models.RSSEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var body []string
	total := 0
	for _, e := range entries {
		if len(e.Items) == 0 {
			continue
		}
		total += len(e.Items)
		body = append(body, fmt.Sprintf("【%s】（%d条）", e.Word, len(e.Items)))
		for _, it := range e.Items {
			var parts []string
			if it.FeedName != "" {
				parts = append(parts, it.FeedName)
			}
			if it.PublishedAt != "" {
				parts = append(parts, it.PublishedAt)
			}
			info := ""
			if len(parts) > 0 {
				info = "（" + strings.Join(parts, " | ") + "）"
			}
			body = append(body, "  - "+truncate(it.Title, 60)+info)
		}
		body = append(body, "")
	}

	if total == 0 {
		return ""
	}

	lines := []string{
		"📰 **RSS 深度新闻**",
		fmt.Sprintf("总计：%d条RSS新闻", total),
		"",
	}
	lines = append(lines, body...)
	return strings.Join(lines, "\n")
}

func renderStandalone(data *models.StandaloneData) string {
	if data == nil || (len(data.Platforms) == 0 && len(data.Feeds) == 0) {
		return ""
	}

	lines := []string{"🏆 **独立展示区**", ""}

	if len(data.Platforms) > 0 {
		lines = append(lines, "🔥 热门平台榜单：")
		for _, p := range data.Platforms {
			if len(p.Items) == 0 {
				continue
			}
			lines = append(lines, "", "【"+p.Name+"】")
			for i, it := range p.Items {
				if i >= 5 {
					break
				}
				rank := it.Rank
				if rank == 0 {
					rank = i + 1
				}
				lines = append(lines, fmt.Sprintf("  %d. %s", rank, truncate(it.Title, 50)))
			}
		}
		lines = append(lines, "")
	}

	if len(data.Feeds) > 0 {
		lines = append(lines, "📰 精选RSS源：")
		for _, f := range data.Feeds {
			if len(f.Items) == 0 {
				continue
			}
			lines = append(lines, "", "【"+f.Name+"】")
			for i, it := range f.Items {
				if i >= 3 {
					break
				}
				line := "  - " + truncate(it.Title, 60)
				if it.PublishedAt != "" {
					line += "（" + it.PublishedAt + "）"
				}
				lines = append(lines, line)
			}
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// aiTitlePrefixes are headings models tend to repeat at the start of the
// first narrative field; stripped so the block header appears exactly once.
var aiTitlePrefixes = []string{
	"🤖 AI 综合研判",
	"🧠 AI 综合研判",
	"AI 综合研判",
	"【AI分析】",
	"【AI研判】",
	"热度定性：",
	"整体热度：",
}

func renderAIAnalysis(ai *models.AIResult) string {
	if ai == nil || !ai.HasNarrative() {
		return ""
	}

	core := strings.TrimSpace(ai.CoreTrends)
	for _, prefix := range aiTitlePrefixes {
		if strings.HasPrefix(core, prefix) {
			core = strings.TrimSpace(strings.TrimPrefix(core, prefix))
			core = strings.TrimSpace(strings.TrimPrefix(core, "："))
		}
	}

	lines := []string{"🧠 **AI 综合研判**", "", core, ""}

	sections := []struct {
		header string
		text   string
	}{
		{"💬 **舆论风向与争议**", ai.SentimentControversy},
		{"📡 **异动与弱信号**", ai.Signals},
		{"📰 **RSS 深度洞察**", ai.RSSInsights},
		{"📌 **研判与策略建议**", ai.OutlookStrategy},
	}
	for _, s := range sections {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		lines = append(lines, s.header, strings.TrimSpace(s.text), "")
	}

	return strings.Join(lines, "\n")
}

func renderPortfolio(portfolio []models.PortfolioHolding, stats []models.StatEntry) string {
	if len(portfolio) == 0 {
		return ""
	}

	lines := []string{"📊 **持仓相关影响分析**", ""}
	for _, stock := range portfolio {
		lines = append(lines, fmt.Sprintf("🔹 **%s（%s）**", stock.Name, stock.Code))
		if stock.Sector != "" {
			for _, stat := range stats {
				if !strings.Contains(strings.ToLower(stat.Word), strings.ToLower(stock.Sector)) {
					continue
				}
				for i, item := range stat.Titles {
					if i >= 2 {
						break
					}
					lines = append(lines, "  - "+truncate(item.Title, 40))
				}
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func renderTrendCompare(summary *models.HistorySummary, ai *models.AIResult) string {
	if summary == nil || summary.Trend == "" {
		return ""
	}

	lines := []string{"📈 **趋势对比分析（新 vs 历史）**", ""}
	lines = append(lines, "昨日/上期判断："+summary.Trend)

	if ai != nil && ai.Success && ai.OutlookStrategy != "" {
		lines = append(lines, "本次判断："+ai.OutlookStrategy)
		if summary.Trend == ai.OutlookStrategy {
			lines = append(lines, "➡️ 趋势判断延续")
		} else {
			lines = append(lines, "⚠️ 趋势判断发生变化，需重点关注")
		}
	}

	return strings.Join(lines, "\n")
}

// truncate shortens long titles at a rune boundary, keeping a trailing
// ellipsis inside the limit.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
