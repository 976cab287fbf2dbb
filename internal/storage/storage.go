// Package storage persists title history, AI artifacts and push records
// behind one Backend interface with local-file, SQLite, Postgres and S3
// implementations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

// Backend is the persistence contract consumed by the pipeline. Days are
// keyed by "YYYY-MM-DD" strings in the pipeline's timezone.
type Backend interface {
	// SaveNewsData merges one crawl batch into the day's title history.
	SaveNewsData(ctx context.Context, now time.Time, batch models.CrawlResults, idToName map[string]string) error
	// ReadTodayTitles returns the accumulated history and source names for
	// the day. A day with no data yields empty maps, not an error.
	ReadTodayTitles(ctx context.Context, day string) (models.TitleHistory, map[string]string, error)
	// DetectNewTitles lists titles first observed in the day's most recent
	// batch, per source.
	DetectNewTitles(ctx context.Context, day string) (map[string][]string, error)
	// IsFirstCrawlToday reports whether the day has exactly one saved batch.
	IsFirstCrawlToday(ctx context.Context, day string) (bool, error)

	SaveAIResult(ctx context.Context, day string, result models.AIResult) error
	// LatestAIResult returns the most recent artifact and its day.
	LatestAIResult(ctx context.Context) (models.AIResult, string, error)

	// HasPushedToday and RecordPush implement the once-per-day discipline;
	// RecordPush must be a conditional write that keeps the first record.
	HasPushedToday(ctx context.Context, day string) (bool, error)
	RecordPush(ctx context.Context, rec models.PushRecord) error

	Close() error
}

// ErrNoAIResult is returned by LatestAIResult when no artifact exists yet.
var ErrNoAIResult = fmt.Errorf("storage: no ai result stored")

// New builds the backend selected by configuration.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg.LocalDir)
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLite)
	case "postgres":
		return NewPostgres(ctx, cfg.DB)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// mergeBatch folds one crawl batch into the day's history in place and
// returns the titles first observed in this batch, per source. Re-sighted
// titles get their ranks unioned and their last-seen time and count bumped.
func mergeBatch(history models.TitleHistory, batch models.CrawlResults, now time.Time) map[string][]string {
	clock := now.Format("15:04")
	newTitles := make(map[string][]string)

	for src, titles := range batch {
		day, ok := history[src]
		if !ok {
			day = make(map[string]models.TitleRecord, len(titles))
			history[src] = day
		}
		for title, meta := range titles {
			rec, seen := day[title]
			if !seen {
				rec = models.TitleRecord{
					Title:     title,
					SourceID:  src,
					URL:       meta.URL,
					MobileURL: meta.MobileURL,
					FirstSeen: clock,
				}
				newTitles[src] = append(newTitles[src], title)
			}
			for _, r := range meta.Ranks {
				rec.AppendRank(r)
			}
			rec.LastSeen = clock
			rec.Count++
			day[title] = rec
		}
	}
	return newTitles
}
