// Package pipeline wires one analysis-and-dispatch cycle: crawl, persist,
// compute statistics, optionally analyze, render and push.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/dispatch"
	"github.com/trendwire/trendwire/internal/models"
	"github.com/trendwire/trendwire/internal/render"
	"github.com/trendwire/trendwire/internal/stats"
	"github.com/trendwire/trendwire/internal/storage"
)

// standaloneTopN caps how many raw titles each standalone platform shows.
const standaloneTopN = 10

// HotlistFetcher pulls ranked platform hotlists.
type HotlistFetcher interface {
	CrawlSources(ctx context.Context, platforms []config.Platform) (models.CrawlResults, map[string]string, []string)
}

// FeedFetcher pulls subscribed RSS feeds.
type FeedFetcher interface {
	FetchAll(ctx context.Context, feeds []config.RSSFeed) ([]models.RSSItem, []models.StandaloneSection, []string)
}

// NewsAnalyzer produces the AI research note for one cycle.
type NewsAnalyzer interface {
	Analyze(ctx context.Context, stats []models.StatEntry, rss []models.RSSEntry, portfolio []models.PortfolioHolding) models.AIResult
}

// ChannelDispatcher fans rendered blocks out to the configured channels.
type ChannelDispatcher interface {
	DispatchAll(ctx context.Context, blocks map[string]models.ContentBlock) map[string]bool
}

// Deps bundles the pipeline's collaborators. Analyzer may be nil when AI
// analysis is disabled; Now and Location may be nil for wall clock / UTC.
type Deps struct {
	Store      storage.Backend
	Hotlist    HotlistFetcher
	RSS        FeedFetcher
	Analyzer   NewsAnalyzer
	Gate       *dispatch.Gate
	Dispatcher ChannelDispatcher
	Now        func() time.Time
	Location   *time.Location
}

// Pipeline runs analysis cycles over a fixed configuration.
type Pipeline struct {
	cfg      *config.Config
	watch    config.Watch
	deps     Deps
	engine   *stats.Engine
	renderer *render.Renderer

	mu          sync.Mutex
	lastOutlook string
}

// New builds a pipeline. The watch file is loaded once; a config change
// needs a restart.
func New(cfg *config.Config, watch config.Watch, deps Deps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Pipeline{
		cfg:      cfg,
		watch:    watch,
		deps:     deps,
		engine:   stats.New(cfg.Report),
		renderer: render.New(deps.Now, render.WithRankThreshold(cfg.Report.RankThreshold)),
	}
}

// RunCycle executes one full cycle. Crawl failures degrade to a partial
// batch; an empty report or a closed push window is a silent no-op. The
// returned error covers storage faults only.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	cycle := uuid.NewString()[:8]
	now := p.deps.Now().In(p.deps.Location)
	day := now.Format("2006-01-02")
	log := slog.With("cycle", cycle)

	var batch models.CrawlResults
	if p.cfg.Crawler.EnableCrawler {
		results, idToName, failed := p.deps.Hotlist.CrawlSources(ctx, p.watch.Platforms)
		if len(failed) > 0 {
			log.Warn("some hotlist sources failed", "failed", failed)
		}
		if len(results) > 0 {
			if err := p.deps.Store.SaveNewsData(ctx, now, results, idToName); err != nil {
				return fmt.Errorf("pipeline: save news data: %w", err)
			}
		}
		batch = results
	}

	var (
		rssItems      []models.RSSItem
		standaloneRSS []models.StandaloneSection
	)
	if p.cfg.Crawler.EnableRSS && p.deps.RSS != nil {
		var failed []string
		rssItems, standaloneRSS, failed = p.deps.RSS.FetchAll(ctx, p.watch.RSSFeeds)
		if len(failed) > 0 {
			log.Warn("some rss feeds failed", "failed", failed)
		}
	}

	history, names, err := p.deps.Store.ReadTodayTitles(ctx, day)
	if err != nil {
		return fmt.Errorf("pipeline: read today titles: %w", err)
	}
	newTitles, err := p.deps.Store.DetectNewTitles(ctx, day)
	if err != nil {
		return fmt.Errorf("pipeline: detect new titles: %w", err)
	}

	entries, total := p.engine.Compute(stats.Input{
		History:       history,
		LatestBatch:   batch,
		NewTitles:     newTitles,
		SourceNames:   names,
		Groups:        p.watch.Groups,
		GlobalFilters: p.watch.FilterWords,
		PlatformMode:  p.cfg.Report.PlatformMode,
	})
	rssEntries := groupRSS(
		stats.FilterRSS(rssItems, p.watch.Groups, p.watch.FilterWords),
		p.watch.Groups,
	)
	log.Info("statistics computed",
		"keywords", len(entries), "candidates", total, "rss_matched", len(rssEntries))

	var aiResult *models.AIResult
	if p.deps.Analyzer != nil && (len(entries) > 0 || len(rssEntries) > 0) {
		result := p.deps.Analyzer.Analyze(ctx, entries, rssEntries, p.watch.Portfolio)
		if err := p.deps.Store.SaveAIResult(ctx, day, result); err != nil {
			return fmt.Errorf("pipeline: save ai result: %w", err)
		}
		aiResult = &result
		if !result.Success {
			log.Warn("ai analysis failed", "error", result.Error)
		}
	}

	blocks := p.renderer.Render(render.Input{
		Stats:          entries,
		RSSStats:       rssEntries,
		AI:             aiResult,
		Portfolio:      p.watch.Portfolio,
		Standalone:     p.standaloneData(batch, names, standaloneRSS),
		HistorySummary: p.historySummary(),
	})
	if len(blocks) == 0 {
		log.Info("nothing to report")
		return nil
	}

	ok, err := p.deps.Gate.ShouldDispatch(ctx, now)
	if err != nil {
		return fmt.Errorf("pipeline: push gate: %w", err)
	}
	if !ok {
		log.Info("push suppressed by gate")
		p.rememberOutlook(aiResult)
		return nil
	}

	results := p.deps.Dispatcher.DispatchAll(ctx, blocks)
	if dispatch.AnySucceeded(results) {
		if err := p.deps.Gate.Record(ctx, now, reportType(p.cfg.Report.Mode)); err != nil {
			return fmt.Errorf("pipeline: record push: %w", err)
		}
	}
	log.Info("dispatch finished", "results", results)
	p.rememberOutlook(aiResult)
	return nil
}

// rememberOutlook keeps this cycle's strategy text for the next cycle's
// trend comparison block.
func (p *Pipeline) rememberOutlook(ai *models.AIResult) {
	if ai == nil || !ai.Success || ai.OutlookStrategy == "" {
		return
	}
	p.mu.Lock()
	p.lastOutlook = ai.OutlookStrategy
	p.mu.Unlock()
}

func (p *Pipeline) historySummary() *models.HistorySummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastOutlook == "" {
		return nil
	}
	return &models.HistorySummary{Trend: p.lastOutlook}
}

// standaloneData assembles the standalone display region: raw rankings for
// the configured platforms plus the standalone feed sections.
func (p *Pipeline) standaloneData(batch models.CrawlResults, names map[string]string, feeds []models.StandaloneSection) *models.StandaloneData {
	var platforms []models.StandaloneSection
	for _, id := range p.watch.StandalonePlatforms {
		titles, ok := batch[id]
		if !ok || len(titles) == 0 {
			continue
		}
		name := names[id]
		if name == "" {
			name = id
		}

		items := make([]models.StandaloneItem, 0, len(titles))
		for _, meta := range titles {
			item := models.StandaloneItem{Title: meta.Title, URL: meta.URL, Ranks: meta.Ranks}
			if len(meta.Ranks) > 0 {
				item.Rank = meta.Ranks[0]
			}
			items = append(items, item)
		}
		sort.Slice(items, func(i, j int) bool {
			return standaloneRankKey(items[i]) < standaloneRankKey(items[j])
		})
		if len(items) > standaloneTopN {
			items = items[:standaloneTopN]
		}
		platforms = append(platforms, models.StandaloneSection{ID: id, Name: name, Items: items})
	}

	if len(platforms) == 0 && len(feeds) == 0 {
		return nil
	}
	return &models.StandaloneData{Platforms: platforms, Feeds: feeds}
}

func standaloneRankKey(it models.StandaloneItem) int {
	if it.Rank > 0 {
		return it.Rank
	}
	return 1 << 30
}

// groupRSS assigns each matched feed item to its first matching keyword
// group, preserving group order.
func groupRSS(items []models.RSSItem, groups []models.KeywordGroup) []models.RSSEntry {
	if len(items) == 0 {
		return nil
	}
	byWord := make(map[string][]models.RSSItem)
	for _, it := range items {
		for _, g := range groups {
			if g.Word == "" {
				continue
			}
			if g.Matches(it.Title) {
				byWord[g.Word] = append(byWord[g.Word], it)
				break
			}
		}
	}

	var out []models.RSSEntry
	for _, g := range groups {
		if its := byWord[g.Word]; len(its) > 0 {
			out = append(out, models.RSSEntry{Word: g.Word, Items: its})
		}
	}
	return out
}

func reportType(mode string) string {
	switch mode {
	case stats.ModeDaily:
		return models.ReportDaily
	case stats.ModeCurrent:
		return models.ReportCurrent
	default:
		return models.ReportIncremental
	}
}
