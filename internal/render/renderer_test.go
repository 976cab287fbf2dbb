package render_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/models"
	"github.com/trendwire/trendwire/internal/render"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)
}

func TestRenderHotTopics(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{
		Stats: []models.StatEntry{
			{
				Word:  "AI",
				Count: 5,
				Titles: []models.TitleItem{
					{Title: "AI监管新规出台", SourceName: "微博", TimeDisplay: "08:00 ~ 09:00", Ranks: []int{2, 7}, Count: 2, IsNew: true},
					{Title: "大模型价格战升级", SourceName: "知乎", Ranks: []int{4}, Count: 1},
				},
			},
		},
	})

	block, ok := blocks[models.BlockHotTopics]
	require.True(t, ok)
	require.False(t, block.Atomic)
	require.Equal(t, 1, block.Priority)

	require.Contains(t, block.Text, "🔥 **分领域重点新闻**")
	require.Contains(t, block.Text, "时间：2026-08-27 09:30")
	require.Contains(t, block.Text, "总计：2条重点新闻")
	require.Contains(t, block.Text, "【AI】（2条/原始5条）", "header shows display vs raw count when they differ")
	require.Contains(t, block.Text, "**第2位**", "top ranks are highlighted")
	require.Contains(t, block.Text, "🆕")
	require.Contains(t, block.Text, "微博 | 08:00 ~ 09:00")
}

func TestRenderHotTopicsEqualCountsOmitRaw(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{
		Stats: []models.StatEntry{
			{Word: "AI", Count: 1, Titles: []models.TitleItem{{Title: "AI新品发布", Count: 1}}},
		},
	})
	require.Contains(t, blocks[models.BlockHotTopics].Text, "【AI】（1条）")
	require.NotContains(t, blocks[models.BlockHotTopics].Text, "原始")
}

func TestRenderAIAnalysisOmittedOnFailure(t *testing.T) {
	r := render.New(fixedClock)

	blocks := r.Render(render.Input{
		AI: &models.AIResult{Success: false, Error: "timeout"},
	})
	_, ok := blocks[models.BlockAIAnalysis]
	require.False(t, ok, "failed analysis never reaches the notification stream")

	blocks = r.Render(render.Input{AI: &models.AIResult{Success: true}})
	_, ok = blocks[models.BlockAIAnalysis]
	require.False(t, ok, "success without content is still omitted")
}

func TestRenderAIAnalysisFields(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{
		AI: &models.AIResult{
			Success:              true,
			CoreTrends:           "🧠 AI 综合研判：市场聚焦降准",
			SentimentControversy: "舆论整体偏暖",
			Signals:              "出口数据异动",
			OutlookStrategy:      "短期偏多",
			StructuredItems:      []models.AIStockItem{{Name: "宁德时代", Code: "300750"}},
		},
	})

	block, ok := blocks[models.BlockAIAnalysis]
	require.True(t, ok)
	require.True(t, block.Atomic)

	text := block.Text
	require.True(t, strings.HasPrefix(text, "🧠 **AI 综合研判**"))
	require.Equal(t, 1, strings.Count(text, "AI 综合研判"), "duplicated model heading is stripped")
	require.Contains(t, text, "市场聚焦降准")

	// Narrative fields appear in fixed order; the empty one is skipped.
	sentiment := strings.Index(text, "舆论风向与争议")
	signals := strings.Index(text, "异动与弱信号")
	outlook := strings.Index(text, "研判与策略建议")
	require.Greater(t, signals, sentiment)
	require.Greater(t, outlook, signals)
	require.NotContains(t, text, "RSS 深度洞察")

	require.NotContains(t, text, "300750", "structured per-item data is never rendered inline")
}

func TestRenderRSSItems(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{
		RSSStats: []models.RSSEntry{
			{Word: "AI", Items: []models.RSSItem{
				{Title: "AI funding roundup", FeedName: "Hacker News", PublishedAt: "2026-08-27"},
			}},
		},
	})

	text := blocks[models.BlockRSSItems].Text
	require.Contains(t, text, "📰 **RSS 深度新闻**")
	require.Contains(t, text, "总计：1条RSS新闻")
	require.Contains(t, text, "Hacker News | 2026-08-27")
}

func TestRenderStandalone(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{
		Standalone: &models.StandaloneData{
			Platforms: []models.StandaloneSection{{
				Name: "华尔街见闻",
				Items: []models.StandaloneItem{
					{Title: "一号新闻", Rank: 1}, {Title: "二号新闻", Rank: 2}, {Title: "三号新闻", Rank: 3},
					{Title: "四号新闻", Rank: 4}, {Title: "五号新闻", Rank: 5}, {Title: "六号新闻", Rank: 6},
				},
			}},
			Feeds: []models.StandaloneSection{{
				Name:  "36氪",
				Items: []models.StandaloneItem{{Title: "深度报道", PublishedAt: "2026-08-27"}},
			}},
		},
	})

	text := blocks[models.BlockStandalone].Text
	require.Contains(t, text, "🏆 **独立展示区**")
	require.Contains(t, text, "【华尔街见闻】")
	require.Contains(t, text, "  5. 五号新闻")
	require.NotContains(t, text, "六号新闻", "platform sections show at most five entries")
	require.Contains(t, text, "  - 深度报道（2026-08-27）")
}

func TestRenderPortfolioAndTrend(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{
		Stats: []models.StatEntry{
			{Word: "新能源", Count: 3, Titles: []models.TitleItem{
				{Title: "锂电产能过剩讨论"}, {Title: "光伏出口回暖"}, {Title: "储能招标放量"},
			}},
		},
		Portfolio: []models.PortfolioHolding{
			{Name: "宁德时代", Code: "300750", Sector: "新能源"},
		},
		AI:             &models.AIResult{Success: true, CoreTrends: "x", OutlookStrategy: "短期偏多"},
		HistorySummary: &models.HistorySummary{Trend: "震荡"},
	})

	portfolio := blocks[models.BlockPortfolio].Text
	require.Contains(t, portfolio, "🔹 **宁德时代（300750）**")
	require.Contains(t, portfolio, "锂电产能过剩讨论")
	require.NotContains(t, portfolio, "储能招标放量", "at most two related headlines per holding")

	trend := blocks[models.BlockTrendCompare].Text
	require.Contains(t, trend, "昨日/上期判断：震荡")
	require.Contains(t, trend, "本次判断：短期偏多")
	require.Contains(t, trend, "⚠️ 趋势判断发生变化")
}

func TestRenderEmptyInput(t *testing.T) {
	r := render.New(fixedClock)
	blocks := r.Render(render.Input{})
	require.Empty(t, blocks, "nothing to render yields no blocks, not an error")
}
