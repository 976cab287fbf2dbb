package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

const (
	feedAccept      = "application/rss+xml, application/atom+xml, application/xml, text/xml"
	feedBodyLimit   = 10 * 1024 * 1024
	defaultMaxAge   = 3 // days, when a feed sets none
	summaryMaxRunes = 200
)

// rssRoot is the top-level XML element for RSS 2.0 feeds.
type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
	Creator     string `xml:"creator"` // dc:creator
}

// atomFeed is the top-level XML element for Atom feeds.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Summary string     `xml:"summary"`
	Updated string     `xml:"updated"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// RSSFetcher pulls subscribed feeds, keeping only entries fresher than each
// feed's max-age window.
type RSSFetcher struct {
	client   *http.Client
	interval time.Duration
	now      func() time.Time
}

// NewRSSFetcher configures the feed fetcher. now may be nil for wall clock.
func NewRSSFetcher(cfg config.CrawlerConfig, now func() time.Time) *RSSFetcher {
	if now == nil {
		now = time.Now
	}
	return &RSSFetcher{
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		interval: time.Duration(cfg.RequestInterval) * time.Millisecond,
		now:      now,
	}
}

// FetchAll fetches every configured feed in order. Matchable items feed the
// keyword pipeline; feeds marked standalone come back as display sections
// instead. Failed feed IDs are reported, not fatal.
func (f *RSSFetcher) FetchAll(ctx context.Context, feeds []config.RSSFeed) (items []models.RSSItem, standalone []models.StandaloneSection, failed []string) {
	for i, feed := range feeds {
		if i > 0 && f.interval > 0 {
			select {
			case <-ctx.Done():
				failed = append(failed, feed.ID)
				continue
			case <-time.After(f.interval):
			}
		}

		fetched, err := f.fetchFeed(ctx, feed)
		if err != nil {
			slog.Warn("rss fetch failed", "feed", feed.ID, "error", err)
			failed = append(failed, feed.ID)
			continue
		}
		slog.Debug("rss fetched", "feed", feed.ID, "items", len(fetched))

		if feed.Standalone {
			section := models.StandaloneSection{ID: feed.ID, Name: feed.Name}
			for _, it := range fetched {
				section.Items = append(section.Items, models.StandaloneItem{
					Title:       it.Title,
					URL:         it.URL,
					PublishedAt: it.PublishedAt,
				})
			}
			standalone = append(standalone, section)
			continue
		}
		items = append(items, fetched...)
	}
	return items, standalone, failed
}

func (f *RSSFetcher) fetchFeed(ctx context.Context, feed config.RSSFeed) ([]models.RSSItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("rss: create request: %w", err)
	}
	req.Header.Set("User-Agent", crawlerUserAgent)
	req.Header.Set("Accept", feedAccept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss: fetch %s: %w", feed.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss: fetch %s: status %d", feed.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, feedBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("rss: read body: %w", err)
	}

	items, err := parseRSS(body, feed)
	if err != nil {
		items, err = parseAtom(body, feed)
	}
	if err != nil {
		return nil, fmt.Errorf("rss: unrecognized feed format at %s", feed.URL)
	}
	return f.filterFresh(items, feed), nil
}

// filterFresh drops entries older than the feed's max-age window. Entries
// with no parseable date are kept.
func (f *RSSFetcher) filterFresh(items []models.RSSItem, feed config.RSSFeed) []models.RSSItem {
	maxAge := feed.MaxAgeDays
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	cutoff := f.now().AddDate(0, 0, -maxAge)

	fresh := items[:0]
	for _, it := range items {
		if it.PublishedAt != "" {
			published, err := time.Parse(time.RFC3339, it.PublishedAt)
			if err == nil && published.Before(cutoff) {
				continue
			}
		}
		fresh = append(fresh, it)
	}
	return fresh
}

func parseRSS(data []byte, feed config.RSSFeed) ([]models.RSSItem, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Channel.Items) == 0 {
		return nil, fmt.Errorf("no RSS items found")
	}

	items := make([]models.RSSItem, 0, len(root.Channel.Items))
	for _, ri := range root.Channel.Items {
		author := strings.TrimSpace(ri.Creator)
		if author == "" {
			author = strings.TrimSpace(ri.Author)
		}
		items = append(items, models.RSSItem{
			Title:       strings.TrimSpace(ri.Title),
			FeedID:      feed.ID,
			FeedName:    feed.Name,
			URL:         strings.TrimSpace(ri.Link),
			PublishedAt: formatFeedDate(ri.PubDate),
			Author:      author,
			Summary:     truncateSummary(ri.Description),
		})
	}
	return items, nil
}

func parseAtom(data []byte, feed config.RSSFeed) ([]models.RSSItem, error) {
	var root atomFeed
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Entries) == 0 {
		return nil, fmt.Errorf("no Atom entries found")
	}

	items := make([]models.RSSItem, 0, len(root.Entries))
	for _, entry := range root.Entries {
		items = append(items, models.RSSItem{
			Title:       strings.TrimSpace(entry.Title),
			FeedID:      feed.ID,
			FeedName:    feed.Name,
			URL:         atomEntryLink(entry.Links),
			PublishedAt: formatFeedDate(entry.Updated),
			Author:      strings.TrimSpace(entry.Author.Name),
			Summary:     truncateSummary(entry.Summary),
		})
	}
	return items, nil
}

// atomEntryLink prefers rel="alternate" or the first href found.
func atomEntryLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

// formatFeedDate normalizes the feed timestamp to RFC 3339, or returns ""
// when no known format matches.
func formatFeedDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"02 Jan 2006 15:04:05 -0700",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return ""
}

func truncateSummary(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= summaryMaxRunes {
		return s
	}
	return string(runes[:summaryMaxRunes]) + "..."
}
