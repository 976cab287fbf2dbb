package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trendwire/trendwire/internal/models"
)

const systemPrompt = `你是一名资深财经新闻分析师。你收到一组热榜新闻和RSS新闻，请完成深度分析并只输出一个JSON对象，字段如下：
{
  "core_trends": "核心热点与舆情态势",
  "sentiment_controversy": "舆论风向与争议",
  "signals": "异动与弱信号",
  "rss_insights": "RSS 深度洞察",
  "outlook_strategy": "研判与策略建议",
  "items": [{"name": "", "code": "", "sector": "", "sentiment": "Positive|Negative|Neutral", "impact": "", "summary": ""}]
}
要求：只输出JSON，不要输出其他说明文字；没有把握的字段留空字符串；items 只包含与新闻明确相关的标的。`

// Analyzer builds the analysis prompt from one cycle's stats and interprets
// the completion into an AIResult.
type Analyzer struct {
	client  *Client
	maxNews int
	now     func() time.Time
}

// NewAnalyzer returns an analyzer over the given client. maxNews caps how
// many headlines enter the prompt; 0 means unlimited.
func NewAnalyzer(client *Client, maxNews int, now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{client: client, maxNews: maxNews, now: now}
}

// Analyze runs one analysis pass. A gateway or prompt failure yields
// Success=false; an unparseable completion still succeeds with the raw text
// in CoreTrends and RawFallback set.
func (a *Analyzer) Analyze(ctx context.Context, stats []models.StatEntry, rss []models.RSSEntry, portfolio []models.PortfolioHolding) models.AIResult {
	hotlist, hotTotal := a.formatHotlist(stats)
	rssText, rssTotal := a.formatRSS(rss, hotTotal)

	if hotlist == "" && rssText == "" {
		return models.AIResult{Success: false, Error: "no news content to analyze"}
	}

	var prompt strings.Builder
	prompt.WriteString("分析时间：" + a.now().Format("2006-01-02 15:04:05") + "\n\n")
	if hotlist != "" {
		prompt.WriteString("## 热榜新闻\n" + hotlist + "\n")
	}
	if rssText != "" {
		prompt.WriteString("## RSS 新闻\n" + rssText + "\n")
	}
	if ctxText := portfolioContext(portfolio); ctxText != "" {
		prompt.WriteString("## 用户持仓\n" + ctxText + "\n")
	}

	text, err := a.client.Complete(ctx, systemPrompt, prompt.String())
	if err != nil {
		return models.AIResult{
			Success:      false,
			Error:        err.Error(),
			TotalNews:    hotTotal + rssTotal,
			HotlistCount: hotTotal,
			RSSCount:     rssTotal,
		}
	}

	outcome := Parse(text)
	result := models.AIResult{
		Success:      true,
		TotalNews:    hotTotal + rssTotal,
		AnalyzedNews: hotTotal + rssTotal,
		HotlistCount: hotTotal,
		RSSCount:     rssTotal,
	}
	if outcome.Structured {
		result.CoreTrends = outcome.Narrative.CoreTrends
		result.SentimentControversy = outcome.Narrative.SentimentControversy
		result.Signals = outcome.Narrative.Signals
		result.RSSInsights = outcome.Narrative.RSSInsights
		result.OutlookStrategy = outcome.Narrative.OutlookStrategy
		result.StructuredItems = outcome.Items
	} else {
		result.CoreTrends = outcome.Raw
		result.RawFallback = true
	}
	return result
}

// formatHotlist renders the deduplicated keyword stats as numbered prompt
// lines, stopping at the configured cap.
func (a *Analyzer) formatHotlist(stats []models.StatEntry) (string, int) {
	var sb strings.Builder
	n := 0
	for _, stat := range stats {
		for _, item := range stat.Titles {
			if a.maxNews > 0 && n >= a.maxNews {
				return sb.String(), n
			}
			n++
			line := fmt.Sprintf("%d. [%s] %s", n, stat.Word, item.Title)
			if item.SourceName != "" {
				line += "（" + item.SourceName + "）"
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String(), n
}

func (a *Analyzer) formatRSS(rss []models.RSSEntry, used int) (string, int) {
	var sb strings.Builder
	n := 0
	for _, entry := range rss {
		for _, item := range entry.Items {
			if a.maxNews > 0 && used+n >= a.maxNews {
				return sb.String(), n
			}
			n++
			line := fmt.Sprintf("%d. [%s] %s", used+n, entry.Word, item.Title)
			if item.FeedName != "" {
				line += "（" + item.FeedName + "）"
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String(), n
}

func portfolioContext(portfolio []models.PortfolioHolding) string {
	var sb strings.Builder
	for _, h := range portfolio {
		sb.WriteString("- " + h.Name + "（" + h.Code + "）")
		if h.Sector != "" {
			sb.WriteString(" 行业：" + h.Sector)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
