// Package crawler fetches per-platform hotlist rankings and subscribed RSS
// feeds for the Trendwire pipeline.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

const crawlerUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// hotlistResponse is the aggregator API payload for one platform.
type hotlistResponse struct {
	Status string `json:"status"`
	Items  []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		MobileURL string `json:"mobileUrl"`
	} `json:"items"`
}

// Fetcher pulls ranked hotlists from the aggregator API, one platform per
// request. Rank is the 1-based position in the returned list.
type Fetcher struct {
	apiBase  string
	interval time.Duration
	retries  int
	timeout  time.Duration
}

// NewFetcher configures the hotlist fetcher.
func NewFetcher(cfg config.CrawlerConfig) *Fetcher {
	return &Fetcher{
		apiBase:  cfg.APIBase,
		interval: time.Duration(cfg.RequestInterval) * time.Millisecond,
		retries:  cfg.Retries,
		timeout:  time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

// CrawlSources fetches every configured platform in order, pacing requests
// by the configured interval. It returns the batch keyed by source ID, the
// ID-to-display-name map, and the IDs that failed after retries. A partial
// batch is not an error.
func (f *Fetcher) CrawlSources(ctx context.Context, platforms []config.Platform) (models.CrawlResults, map[string]string, []string) {
	results := models.CrawlResults{}
	idToName := make(map[string]string, len(platforms))
	var failed []string

	for i, p := range platforms {
		if i > 0 && f.interval > 0 {
			select {
			case <-ctx.Done():
				failed = append(failed, p.ID)
				continue
			case <-time.After(f.interval):
			}
		}

		titles, err := f.fetchSource(ctx, p.ID)
		if err != nil {
			slog.Warn("hotlist fetch failed", "source", p.ID, "error", err)
			failed = append(failed, p.ID)
			continue
		}
		results[p.ID] = titles
		idToName[p.ID] = p.DisplayName()
		slog.Debug("hotlist fetched", "source", p.ID, "titles", len(titles))
	}

	return results, idToName, failed
}

// fetchSource requests one platform's hotlist, retrying transient failures.
func (f *Fetcher) fetchSource(ctx context.Context, id string) (map[string]models.TitleMeta, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		titles, err := f.fetchOnce(ctx, id)
		if err == nil {
			return titles, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, id string) (map[string]models.TitleMeta, error) {
	c := colly.NewCollector(
		colly.UserAgent(crawlerUserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.timeout)

	var (
		payload  hotlistResponse
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		r.Headers.Set("Cache-Control", "no-cache")
	})
	c.OnResponse(func(r *colly.Response) {
		if err := json.Unmarshal(r.Body, &payload); err != nil {
			fetchErr = fmt.Errorf("crawler: decode %s response: %w", id, err)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("crawler: fetch %s: %w", id, err)
	})

	target := fmt.Sprintf("%s?id=%s&latest", f.apiBase, url.QueryEscape(id))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(target); err != nil && fetchErr == nil {
			fetchErr = fmt.Errorf("crawler: visit %s: %w", id, err)
		}
		c.Wait()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	if fetchErr != nil {
		return nil, fetchErr
	}
	if payload.Status != "success" && payload.Status != "cache" {
		return nil, fmt.Errorf("crawler: %s returned status %q", id, payload.Status)
	}

	titles := make(map[string]models.TitleMeta, len(payload.Items))
	for i, item := range payload.Items {
		if item.Title == "" {
			continue
		}
		meta, seen := titles[item.Title]
		if !seen {
			meta = models.TitleMeta{
				Title:     item.Title,
				URL:       item.URL,
				MobileURL: item.MobileURL,
			}
		}
		meta.Ranks = append(meta.Ranks, i+1)
		titles[item.Title] = meta
	}
	return titles, nil
}
