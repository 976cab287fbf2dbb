package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trendwire/trendwire/internal/models"
)

// Local stores one JSON document per day under the output directory:
// news/<day>.json, ai/<day>.json and push/<day>.json. Push records rely on
// O_EXCL file creation for the conditional write.
type Local struct {
	dir string
	mu  sync.Mutex
}

// dayDocument is the news/<day>.json layout.
type dayDocument struct {
	Date        string              `json:"date"`
	BatchCount  int                 `json:"batch_count"`
	SourceNames map[string]string   `json:"source_names"`
	History     models.TitleHistory `json:"history"`
	// LastBatchNew lists titles first seen in the most recent batch.
	LastBatchNew map[string][]string `json:"last_batch_new"`
}

// NewLocal creates the directory layout and returns the backend.
func NewLocal(dir string) (*Local, error) {
	for _, sub := range []string{"news", "ai", "push"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s dir: %w", sub, err)
		}
	}
	return &Local{dir: dir}, nil
}

func (l *Local) SaveNewsData(ctx context.Context, now time.Time, batch models.CrawlResults, idToName map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := now.Format("2006-01-02")
	doc, err := l.readDay(day)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &dayDocument{
			Date:        day,
			SourceNames: map[string]string{},
			History:     models.TitleHistory{},
		}
	}

	doc.LastBatchNew = mergeBatch(doc.History, batch, now)
	doc.BatchCount++
	for id, name := range idToName {
		doc.SourceNames[id] = name
	}

	return l.writeJSON(l.newsPath(day), doc)
}

func (l *Local) ReadTodayTitles(_ context.Context, day string) (models.TitleHistory, map[string]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.readDay(day)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return models.TitleHistory{}, map[string]string{}, nil
	}
	return doc.History, doc.SourceNames, nil
}

func (l *Local) DetectNewTitles(_ context.Context, day string) (map[string][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.readDay(day)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return map[string][]string{}, nil
	}
	return doc.LastBatchNew, nil
}

func (l *Local) IsFirstCrawlToday(_ context.Context, day string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.readDay(day)
	if err != nil {
		return false, err
	}
	return doc != nil && doc.BatchCount == 1, nil
}

func (l *Local) SaveAIResult(_ context.Context, day string, result models.AIResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeJSON(filepath.Join(l.dir, "ai", day+".json"), result)
}

func (l *Local) LatestAIResult(_ context.Context) (models.AIResult, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(l.dir, "ai"))
	if err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: read ai dir: %w", err)
	}

	var days []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			days = append(days, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	if len(days) == 0 {
		return models.AIResult{}, "", ErrNoAIResult
	}
	sort.Strings(days)
	day := days[len(days)-1]

	data, err := os.ReadFile(filepath.Join(l.dir, "ai", day+".json"))
	if err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: read ai result: %w", err)
	}
	var result models.AIResult
	if err := json.Unmarshal(data, &result); err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: decode ai result: %w", err)
	}
	return result, day, nil
}

func (l *Local) HasPushedToday(_ context.Context, day string) (bool, error) {
	_, err := os.Stat(filepath.Join(l.dir, "push", day+".json"))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("storage: stat push record: %w", err)
}

// RecordPush creates the day's record with O_EXCL so the first writer wins
// and a repeat call is a no-op.
func (l *Local) RecordPush(_ context.Context, rec models.PushRecord) error {
	path := filepath.Join(l.dir, "push", rec.Date+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("storage: create push record: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("storage: write push record: %w", err)
	}
	return nil
}

func (l *Local) Close() error { return nil }

func (l *Local) newsPath(day string) string {
	return filepath.Join(l.dir, "news", day+".json")
}

func (l *Local) readDay(day string) (*dayDocument, error) {
	data, err := os.ReadFile(l.newsPath(day))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read day document: %w", err)
	}
	var doc dayDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage: decode day document: %w", err)
	}
	return &doc, nil
}

// writeJSON writes atomically via a temp file rename.
func (l *Local) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
