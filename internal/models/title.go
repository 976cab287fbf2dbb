// Package models defines the data types shared across the Trendwire
// analysis and dispatch pipeline.
package models

// TitleMeta is one headline as observed in a single crawl batch.
type TitleMeta struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	MobileURL string `json:"mobile_url,omitempty"`
	Ranks     []int  `json:"ranks"`
}

// CrawlResults maps source ID to the titles observed on that source in one
// crawl batch.
type CrawlResults map[string]map[string]TitleMeta

// TitleRecord is the accumulated history of one headline on one source
// within the retention window. It is created on first sighting; Ranks,
// LastSeen and Count are updated on every re-sighting. Ranks preserves
// observation order, so Ranks[len-1] is the most recent position.
type TitleRecord struct {
	Title     string `json:"title"`
	SourceID  string `json:"source_id"`
	Ranks     []int  `json:"ranks"`
	URL       string `json:"url"`
	MobileURL string `json:"mobile_url,omitempty"`
	FirstSeen string `json:"first_seen"` // wall clock HH:MM of first sighting today
	LastSeen  string `json:"last_seen"`
	Count     int    `json:"count"` // number of crawl batches the title appeared in
}

// TitleHistory maps source ID to title to its accumulated record for the
// current day.
type TitleHistory map[string]map[string]TitleRecord

// AppendRank records a newly observed rank position, preserving observation
// order and skipping positions already seen.
func (r *TitleRecord) AppendRank(rank int) {
	for _, existing := range r.Ranks {
		if existing == rank {
			return
		}
	}
	r.Ranks = append(r.Ranks, rank)
}
