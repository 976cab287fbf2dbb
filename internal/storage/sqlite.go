package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trendwire/trendwire/internal/models"
)

// SQLite persists days in three tables: titles (one row per observed title,
// record stored as JSON), day_meta (batch counter and source names) and the
// push/ai tables shared with the Postgres schema.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS titles (
	day TEXT NOT NULL,
	source_id TEXT NOT NULL,
	title TEXT NOT NULL,
	record TEXT NOT NULL,
	is_new INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day, source_id, title)
);
CREATE TABLE IF NOT EXISTS day_meta (
	day TEXT PRIMARY KEY,
	batch_count INTEGER NOT NULL DEFAULT 0,
	source_names TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS ai_results (
	day TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS push_records (
	day TEXT PRIMARY KEY,
	report_type TEXT NOT NULL,
	pushed_at TEXT NOT NULL
);`

// NewSQLite opens (creating if needed) the database file and its schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// The file-backed driver tolerates exactly one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveNewsData(ctx context.Context, now time.Time, batch models.CrawlResults, idToName map[string]string) error {
	day := now.Format("2006-01-02")

	history, names, err := s.ReadTodayTitles(ctx, day)
	if err != nil {
		return err
	}
	newTitles := mergeBatch(history, batch, now)
	for id, name := range idToName {
		names[id] = name
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("storage: encode source names: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE titles SET is_new = 0 WHERE day = ?`, day); err != nil {
		return fmt.Errorf("storage: clear new flags: %w", err)
	}

	newSet := make(map[string]map[string]bool, len(newTitles))
	for src, titles := range newTitles {
		set := make(map[string]bool, len(titles))
		for _, t := range titles {
			set[t] = true
		}
		newSet[src] = set
	}

	for src, titles := range history {
		for title, rec := range titles {
			recJSON, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("storage: encode title record: %w", err)
			}
			isNew := 0
			if newSet[src][title] {
				isNew = 1
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO titles (day, source_id, title, record, is_new)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (day, source_id, title)
				DO UPDATE SET record = excluded.record, is_new = excluded.is_new`,
				day, src, title, string(recJSON), isNew); err != nil {
				return fmt.Errorf("storage: upsert title: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO day_meta (day, batch_count, source_names) VALUES (?, 1, ?)
		ON CONFLICT (day)
		DO UPDATE SET batch_count = day_meta.batch_count + 1, source_names = excluded.source_names`,
		day, string(namesJSON)); err != nil {
		return fmt.Errorf("storage: bump batch count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit batch: %w", err)
	}
	return nil
}

func (s *SQLite) ReadTodayTitles(ctx context.Context, day string) (models.TitleHistory, map[string]string, error) {
	history := models.TitleHistory{}
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, title, record FROM titles WHERE day = ?`, day)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: query titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, title, recJSON string
		if err := rows.Scan(&src, &title, &recJSON); err != nil {
			return nil, nil, fmt.Errorf("storage: scan title: %w", err)
		}
		var rec models.TitleRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, nil, fmt.Errorf("storage: decode title record: %w", err)
		}
		if history[src] == nil {
			history[src] = map[string]models.TitleRecord{}
		}
		history[src][title] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage: iterate titles: %w", err)
	}

	names := map[string]string{}
	var namesJSON string
	err = s.db.QueryRowContext(ctx, `SELECT source_names FROM day_meta WHERE day = ?`, day).Scan(&namesJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, nil, fmt.Errorf("storage: query day meta: %w", err)
	default:
		if err := json.Unmarshal([]byte(namesJSON), &names); err != nil {
			return nil, nil, fmt.Errorf("storage: decode source names: %w", err)
		}
	}
	return history, names, nil
}

func (s *SQLite) DetectNewTitles(ctx context.Context, day string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, title FROM titles WHERE day = ? AND is_new = 1 ORDER BY source_id, title`, day)
	if err != nil {
		return nil, fmt.Errorf("storage: query new titles: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var src, title string
		if err := rows.Scan(&src, &title); err != nil {
			return nil, fmt.Errorf("storage: scan new title: %w", err)
		}
		out[src] = append(out[src], title)
	}
	return out, rows.Err()
}

func (s *SQLite) IsFirstCrawlToday(ctx context.Context, day string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT batch_count FROM day_meta WHERE day = ?`, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: query batch count: %w", err)
	}
	return count == 1, nil
}

func (s *SQLite) SaveAIResult(ctx context.Context, day string, result models.AIResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("storage: encode ai result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_results (day, payload) VALUES (?, ?)
		ON CONFLICT (day) DO UPDATE SET payload = excluded.payload`,
		day, string(payload))
	if err != nil {
		return fmt.Errorf("storage: save ai result: %w", err)
	}
	return nil
}

func (s *SQLite) LatestAIResult(ctx context.Context) (models.AIResult, string, error) {
	var day, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT day, payload FROM ai_results ORDER BY day DESC LIMIT 1`).Scan(&day, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AIResult{}, "", ErrNoAIResult
	}
	if err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: query ai result: %w", err)
	}
	var result models.AIResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: decode ai result: %w", err)
	}
	return result, day, nil
}

func (s *SQLite) HasPushedToday(ctx context.Context, day string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM push_records WHERE day = ?`, day).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: query push record: %w", err)
	}
	return true, nil
}

// RecordPush keeps the first record of the day; the conflict clause makes
// the write conditional.
func (s *SQLite) RecordPush(ctx context.Context, rec models.PushRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_records (day, report_type, pushed_at) VALUES (?, ?, ?)
		ON CONFLICT (day) DO NOTHING`,
		rec.Date, rec.ReportType, rec.PushedAt)
	if err != nil {
		return fmt.Errorf("storage: record push: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
