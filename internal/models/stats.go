package models

// TitleItem is a deduplicated headline inside a StatEntry. Near-duplicate
// originals are collapsed into one item that owns the union of their ranks.
type TitleItem struct {
	Title       string `json:"title"`
	SourceName  string `json:"source_name"`
	Ranks       []int  `json:"ranks"` // merged, deduplicated, ascending
	Count       int    `json:"count"` // originals merged into this item
	URL         string `json:"url,omitempty"`
	TimeDisplay string `json:"time_display,omitempty"`
	IsNew       bool   `json:"is_new,omitempty"`
	FirstSeen   string `json:"first_seen,omitempty"`
}

// BestRank returns the lowest (best) merged rank, or 0 when no rank is known.
func (t TitleItem) BestRank() int {
	best := 0
	for _, r := range t.Ranks {
		if r > 0 && (best == 0 || r < best) {
			best = r
		}
	}
	return best
}

// StatEntry is the Stats Engine's output for one keyword group (or, in
// platform display mode, one source platform). Count always reflects raw
// matches before deduplication so reports can state "N shown / M raw".
type StatEntry struct {
	Word   string      `json:"word"`
	Count  int         `json:"count"`
	Titles []TitleItem `json:"titles"`
}

// RSSItem is one entry fetched from a subscribed feed.
type RSSItem struct {
	Title       string `json:"title"`
	FeedID      string `json:"feed_id"`
	FeedName    string `json:"feed_name"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
	Author      string `json:"author,omitempty"`
	Summary     string `json:"summary,omitempty"`
}
