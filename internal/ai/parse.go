package ai

import (
	"encoding/json"
	"strings"

	"github.com/trendwire/trendwire/internal/models"
)

// Narrative holds the five analysis fields in their fixed report order.
type Narrative struct {
	CoreTrends           string `json:"core_trends"`
	SentimentControversy string `json:"sentiment_controversy"`
	Signals              string `json:"signals"`
	RSSInsights          string `json:"rss_insights"`
	OutlookStrategy      string `json:"outlook_strategy"`
}

// ParseOutcome is the result of interpreting a completion. When Structured
// is false the completion could not be read as JSON and Raw carries the full
// text for the raw-text fallback; the caller still treats the analysis as
// successful.
type ParseOutcome struct {
	Structured bool
	Narrative  Narrative
	Items      []models.AIStockItem
	Raw        string
}

type structuredPayload struct {
	Narrative
	Items []models.AIStockItem `json:"items"`
	// Some models nest the array under a different key.
	StockAnalysis []models.AIStockItem `json:"stock_analysis"`
}

// Parse interprets a model completion. It tolerates fenced code blocks
// around the JSON document and falls back to raw text when the document is
// missing, malformed, or empty of narrative content.
func Parse(text string) ParseOutcome {
	doc := stripCodeFence(text)

	var payload structuredPayload
	if err := json.Unmarshal([]byte(doc), &payload); err == nil && payload.CoreTrends != "" {
		items := payload.Items
		if len(items) == 0 {
			items = payload.StockAnalysis
		}
		return ParseOutcome{
			Structured: true,
			Narrative:  payload.Narrative,
			Items:      items,
		}
	}

	return ParseOutcome{Raw: strings.TrimSpace(text)}
}

// stripCodeFence unwraps ```json ... ``` style fences, returning the inner
// document. Text without a fence passes through unchanged.
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
