// Command worker runs the Trendwire analysis-and-dispatch pipeline. It
// periodically crawls configured hotlist platforms and RSS feeds, computes
// keyword statistics, optionally runs AI analysis, and pushes the rendered
// report to the configured channels.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trendwire/trendwire/internal/ai"
	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/crawler"
	"github.com/trendwire/trendwire/internal/dispatch"
	"github.com/trendwire/trendwire/internal/pipeline"
	"github.com/trendwire/trendwire/internal/storage"
)

func main() {
	// Structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("worker: starting trendwire worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("worker: invalid configuration", "err", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		slog.Error("worker: load timezone", "err", err)
		os.Exit(1)
	}

	watch, err := config.LoadWatch(cfg.WatchFile)
	if err != nil {
		slog.Error("worker: load watch file", "err", err)
		os.Exit(1)
	}

	// Root context cancelled on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		slog.Error("worker: storage init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var analyzer pipeline.NewsAnalyzer
	if cfg.AI.Enabled {
		client := ai.NewClient(cfg.AI, watch.AIFallbacks)
		analyzer = ai.NewAnalyzer(client, cfg.AI.MaxNews, nil)
	}

	senders := dispatch.BuildSenders(cfg.Channels)
	if len(senders) == 0 {
		slog.Warn("worker: no notification channels configured")
	}

	p := pipeline.New(&cfg, watch, pipeline.Deps{
		Store:      store,
		Hotlist:    crawler.NewFetcher(cfg.Crawler),
		RSS:        crawler.NewRSSFetcher(cfg.Crawler, nil),
		Analyzer:   analyzer,
		Gate:       dispatch.NewGate(cfg.Push, store, loc),
		Dispatcher: dispatch.NewDispatcher(senders),
		Location:   loc,
	})

	// Track in-flight cycles for graceful shutdown.
	var wg sync.WaitGroup

	runCycle := func() {
		wg.Add(1)
		defer wg.Done()

		cycleCtx, cycleCancel := context.WithTimeout(ctx, 20*time.Minute)
		defer cycleCancel()

		if err := p.RunCycle(cycleCtx); err != nil {
			slog.Error("worker: cycle failed", "err", err)
		}
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.CronSpec, runCycle); err != nil {
		slog.Error("worker: add pipeline cron", "err", err)
		os.Exit(1)
	}

	c.Start()
	slog.Info("worker: cron scheduler started", "spec", cfg.CronSpec, "timezone", cfg.Timezone)

	// Run an initial cycle on startup so the first report doesn't wait for
	// the schedule.
	go func() {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
		runCycle()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("worker: shutting down...")
	cancel()
	<-c.Stop().Done()
	wg.Wait()
	slog.Info("worker: stopped")
}
