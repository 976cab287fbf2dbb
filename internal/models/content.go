package models

// Content block keys produced by the renderer. The order of BlockOrder is
// also the dispatch priority order.
const (
	BlockHotTopics    = "hot_topics"
	BlockRSSItems     = "rss_items"
	BlockStandalone   = "standalone_data"
	BlockAIAnalysis   = "ai_analysis"
	BlockPortfolio    = "portfolio_impact"
	BlockTrendCompare = "trend_compare"
)

// BlockOrder fixes the rendering and dispatch order of content blocks.
var BlockOrder = []string{
	BlockHotTopics,
	BlockRSSItems,
	BlockStandalone,
	BlockAIAnalysis,
	BlockPortfolio,
	BlockTrendCompare,
}

// BlockPriority returns the dispatch priority for a block key, lower being
// earlier. Unknown keys sort last.
func BlockPriority(key string) int {
	for i, k := range BlockOrder {
		if k == key {
			return i + 1
		}
	}
	return len(BlockOrder) + 1
}

// ContentBlock is one channel-agnostic rendered section. An empty Text means
// the block is omitted. Atomic blocks must never be length-split except as an
// absolute last resort at paragraph boundaries.
type ContentBlock struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
	Atomic   bool   `json:"atomic"`
}

// DispatchMessage is one size-bounded message produced by the splitter for a
// specific channel budget. Messages for the same block key retain their
// relative order.
type DispatchMessage struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// StandaloneItem is one entry in the standalone display region.
type StandaloneItem struct {
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Rank        int    `json:"rank,omitempty"`
	Ranks       []int  `json:"ranks,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// StandaloneSection groups standalone items under one platform or feed.
type StandaloneSection struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Items []StandaloneItem `json:"items"`
}

// StandaloneData carries the standalone display region: raw platform
// rankings and selected RSS feeds shown verbatim, outside keyword matching.
type StandaloneData struct {
	Platforms []StandaloneSection `json:"platforms,omitempty"`
	Feeds     []StandaloneSection `json:"feeds,omitempty"`
}

// PortfolioHolding is one user holding used for the portfolio impact block
// and the AI portfolio context.
type PortfolioHolding struct {
	Name   string `yaml:"name" json:"name"`
	Code   string `yaml:"code" json:"code"`
	Sector string `yaml:"sector,omitempty" json:"sector,omitempty"`
}

// HistorySummary carries the previous cycle's trend judgement for the trend
// comparison block.
type HistorySummary struct {
	Trend string `json:"trend,omitempty"`
}
