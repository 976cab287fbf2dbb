package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

// Postgres mirrors the SQLite schema on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS titles (
	day TEXT NOT NULL,
	source_id TEXT NOT NULL,
	title TEXT NOT NULL,
	record JSONB NOT NULL,
	is_new BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (day, source_id, title)
);
CREATE TABLE IF NOT EXISTS day_meta (
	day TEXT PRIMARY KEY,
	batch_count INTEGER NOT NULL DEFAULT 0,
	source_names JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS ai_results (
	day TEXT PRIMARY KEY,
	payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS push_records (
	day TEXT PRIMARY KEY,
	report_type TEXT NOT NULL,
	pushed_at TIMESTAMPTZ NOT NULL
);`

// NewPostgres connects the pool and ensures the schema exists.
func NewPostgres(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: create postgres schema: %w", err)
	}
	slog.Info("postgres storage connected", "host", cfg.Host, "db", cfg.DBName)
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) SaveNewsData(ctx context.Context, now time.Time, batch models.CrawlResults, idToName map[string]string) error {
	day := now.Format("2006-01-02")

	history, names, err := p.ReadTodayTitles(ctx, day)
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

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE titles SET is_new = FALSE WHERE day = $1`, day); err != nil {
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
			if _, err := tx.Exec(ctx, `
				INSERT INTO titles (day, source_id, title, record, is_new)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (day, source_id, title)
				DO UPDATE SET record = EXCLUDED.record, is_new = EXCLUDED.is_new`,
				day, src, title, recJSON, newSet[src][title]); err != nil {
				return fmt.Errorf("storage: upsert title: %w", err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO day_meta (day, batch_count, source_names) VALUES ($1, 1, $2)
		ON CONFLICT (day)
		DO UPDATE SET batch_count = day_meta.batch_count + 1, source_names = EXCLUDED.source_names`,
		day, namesJSON); err != nil {
		return fmt.Errorf("storage: bump batch count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit batch: %w", err)
	}
	return nil
}

func (p *Postgres) ReadTodayTitles(ctx context.Context, day string) (models.TitleHistory, map[string]string, error) {
	history := models.TitleHistory{}
	rows, err := p.pool.Query(ctx, `SELECT source_id, title, record FROM titles WHERE day = $1`, day)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: query titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, title string
		var recJSON []byte
		if err := rows.Scan(&src, &title, &recJSON); err != nil {
			return nil, nil, fmt.Errorf("storage: scan title: %w", err)
		}
		var rec models.TitleRecord
		if err := json.Unmarshal(recJSON, &rec); err != nil {
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
	var namesJSON []byte
	err = p.pool.QueryRow(ctx, `SELECT source_names FROM day_meta WHERE day = $1`, day).Scan(&namesJSON)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, nil, fmt.Errorf("storage: query day meta: %w", err)
	default:
		if err := json.Unmarshal(namesJSON, &names); err != nil {
			return nil, nil, fmt.Errorf("storage: decode source names: %w", err)
		}
	}
	return history, names, nil
}

func (p *Postgres) DetectNewTitles(ctx context.Context, day string) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT source_id, title FROM titles WHERE day = $1 AND is_new ORDER BY source_id, title`, day)
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

func (p *Postgres) IsFirstCrawlToday(ctx context.Context, day string) (bool, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT batch_count FROM day_meta WHERE day = $1`, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: query batch count: %w", err)
	}
	return count == 1, nil
}

func (p *Postgres) SaveAIResult(ctx context.Context, day string, result models.AIResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("storage: encode ai result: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO ai_results (day, payload) VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE SET payload = EXCLUDED.payload`,
		day, payload)
	if err != nil {
		return fmt.Errorf("storage: save ai result: %w", err)
	}
	return nil
}

func (p *Postgres) LatestAIResult(ctx context.Context) (models.AIResult, string, error) {
	var day string
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT day, payload FROM ai_results ORDER BY day DESC LIMIT 1`).Scan(&day, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AIResult{}, "", ErrNoAIResult
	}
	if err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: query ai result: %w", err)
	}
	var result models.AIResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return models.AIResult{}, "", fmt.Errorf("storage: decode ai result: %w", err)
	}
	return result, day, nil
}

func (p *Postgres) HasPushedToday(ctx context.Context, day string) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM push_records WHERE day = $1`, day).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: query push record: %w", err)
	}
	return true, nil
}

// RecordPush uses ON CONFLICT DO NOTHING so overlapping cycles cannot claim
// the same day twice.
func (p *Postgres) RecordPush(ctx context.Context, rec models.PushRecord) error {
	pushedAt, err := time.Parse(time.RFC3339, rec.PushedAt)
	if err != nil {
		pushedAt = time.Now()
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO push_records (day, report_type, pushed_at) VALUES ($1, $2, $3)
		ON CONFLICT (day) DO NOTHING`,
		rec.Date, rec.ReportType, pushedAt)
	if err != nil {
		return fmt.Errorf("storage: record push: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
