package models

// AIStockItem is one structured per-item judgement from the AI analysis.
// The array is exported to the day's JSON artifact; it is never rendered
// into the notification stream.
type AIStockItem struct {
	Name      string `json:"name,omitempty"`
	Code      string `json:"code,omitempty"`
	Sector    string `json:"sector,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Impact    string `json:"impact,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// AIResult is the analysis outcome. When the response could not be parsed as
// structured data, CoreTrends carries the raw text, RawFallback is set and
// Success stays true so a degraded report still ships.
type AIResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	CoreTrends           string `json:"core_trends,omitempty"`
	SentimentControversy string `json:"sentiment_controversy,omitempty"`
	Signals              string `json:"signals,omitempty"`
	RSSInsights          string `json:"rss_insights,omitempty"`
	OutlookStrategy      string `json:"outlook_strategy,omitempty"`

	StructuredItems []AIStockItem `json:"structured_items,omitempty"`
	RawFallback     bool          `json:"raw_fallback,omitempty"`

	TotalNews    int `json:"total_news,omitempty"`
	AnalyzedNews int `json:"analyzed_news,omitempty"`
	HotlistCount int `json:"hotlist_count,omitempty"`
	RSSCount     int `json:"rss_count,omitempty"`
}

// HasNarrative reports whether the result carries any renderable text.
func (r AIResult) HasNarrative() bool {
	return r.Success && r.CoreTrends != ""
}

// RSSEntry groups matched feed items under one keyword group for the RSS
// content block.
type RSSEntry struct {
	Word  string    `json:"word"`
	Items []RSSItem `json:"items"`
}
