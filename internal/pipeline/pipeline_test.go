package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/dispatch"
	"github.com/trendwire/trendwire/internal/models"
	"github.com/trendwire/trendwire/internal/pipeline"
	"github.com/trendwire/trendwire/internal/storage"
)

type fakeHotlist struct {
	results models.CrawlResults
	names   map[string]string
	failed  []string
}

func (f *fakeHotlist) CrawlSources(_ context.Context, _ []config.Platform) (models.CrawlResults, map[string]string, []string) {
	return f.results, f.names, f.failed
}

type fakeAnalyzer struct {
	result models.AIResult
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []models.StatEntry, _ []models.RSSEntry, _ []models.PortfolioHolding) models.AIResult {
	f.calls++
	return f.result
}

type fakeDispatcher struct {
	results map[string]bool
	blocks  map[string]models.ContentBlock
	calls   int
}

func (f *fakeDispatcher) DispatchAll(_ context.Context, blocks map[string]models.ContentBlock) map[string]bool {
	f.calls++
	f.blocks = blocks
	return f.results
}

func testConfig() *config.Config {
	return &config.Config{
		Report: config.ReportConfig{
			Mode:                "daily",
			MaxNewsPerKeyword:   3,
			SimilarityThreshold: 0.7,
		},
		Crawler: config.CrawlerConfig{EnableCrawler: true},
		Push:    config.PushConfig{OncePerDay: true},
	}
}

func testWatch() config.Watch {
	return config.Watch{
		Platforms: []config.Platform{{ID: "weibo", Name: "微博"}},
		Groups: []models.KeywordGroup{
			{Word: "央行", Required: []string{"央行", "降准"}},
		},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newPipeline(t *testing.T, cfg *config.Config, watch config.Watch, deps pipeline.Deps) (*pipeline.Pipeline, storage.Backend) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	deps.Store = store
	if deps.Gate == nil {
		deps.Gate = dispatch.NewGate(cfg.Push, store, time.UTC)
	}
	return pipeline.New(cfg, watch, deps), store
}

func TestRunCycleDispatchesAndRecordsPush(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	cfg := testConfig()

	disp := &fakeDispatcher{results: map[string]bool{"feishu": true}}
	p, store := newPipeline(t, cfg, testWatch(), pipeline.Deps{
		Hotlist: &fakeHotlist{
			results: models.CrawlResults{"weibo": {
				"央行宣布降准": {Title: "央行宣布降准", Ranks: []int{1}},
			}},
			names: map[string]string{"weibo": "微博"},
		},
		Dispatcher: disp,
		Now:        fixedClock(now),
	})

	require.NoError(t, p.RunCycle(ctx))
	require.Equal(t, 1, disp.calls)
	require.Contains(t, disp.blocks, models.BlockHotTopics)
	require.Contains(t, disp.blocks[models.BlockHotTopics].Text, "央行")

	pushed, err := store.HasPushedToday(ctx, "2026-08-27")
	require.NoError(t, err)
	require.True(t, pushed, "successful dispatch claims the daily allowance")

	// Second cycle the same day is suppressed by once-per-day.
	require.NoError(t, p.RunCycle(ctx))
	require.Equal(t, 1, disp.calls)
}

func TestRunCycleNoMatchesIsSilentNoOp(t *testing.T) {
	disp := &fakeDispatcher{results: map[string]bool{}}
	p, _ := newPipeline(t, testConfig(), testWatch(), pipeline.Deps{
		Hotlist: &fakeHotlist{
			results: models.CrawlResults{"weibo": {
				"无关新闻": {Title: "无关新闻", Ranks: []int{1}},
			}},
		},
		Dispatcher: disp,
	})

	require.NoError(t, p.RunCycle(context.Background()))
	require.Zero(t, disp.calls, "empty report never reaches the dispatcher")
}

func TestRunCycleAllChannelsFailedLeavesAllowance(t *testing.T) {
	ctx := context.Background()
	disp := &fakeDispatcher{results: map[string]bool{"feishu": false}}
	p, store := newPipeline(t, testConfig(), testWatch(), pipeline.Deps{
		Hotlist: &fakeHotlist{
			results: models.CrawlResults{"weibo": {
				"央行宣布降准": {Title: "央行宣布降准", Ranks: []int{1}},
			}},
		},
		Dispatcher: disp,
	})

	require.NoError(t, p.RunCycle(ctx))
	require.Equal(t, 1, disp.calls)

	pushed, err := store.HasPushedToday(ctx, time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	require.False(t, pushed, "a fully failed dispatch keeps the day claimable")
}

func TestRunCycleWindowSuppressesDispatch(t *testing.T) {
	cfg := testConfig()
	cfg.Push = config.PushConfig{
		WindowEnabled: true,
		WindowStart:   "09:00",
		WindowEnd:     "10:00",
	}
	disp := &fakeDispatcher{results: map[string]bool{"feishu": true}}
	p, _ := newPipeline(t, cfg, testWatch(), pipeline.Deps{
		Hotlist: &fakeHotlist{
			results: models.CrawlResults{"weibo": {
				"央行宣布降准": {Title: "央行宣布降准", Ranks: []int{1}},
			}},
		},
		Dispatcher: disp,
		Now:        fixedClock(time.Date(2026, 8, 27, 23, 30, 0, 0, time.UTC)),
	})

	require.NoError(t, p.RunCycle(context.Background()))
	require.Zero(t, disp.calls)
}

func TestRunCycleStoresAIArtifact(t *testing.T) {
	ctx := context.Background()
	analyzer := &fakeAnalyzer{result: models.AIResult{
		Success:         true,
		CoreTrends:      "货币政策宽松预期升温",
		OutlookStrategy: "关注银行板块",
	}}
	disp := &fakeDispatcher{results: map[string]bool{"feishu": true}}
	p, store := newPipeline(t, testConfig(), testWatch(), pipeline.Deps{
		Hotlist: &fakeHotlist{
			results: models.CrawlResults{"weibo": {
				"央行宣布降准": {Title: "央行宣布降准", Ranks: []int{1}},
			}},
		},
		Analyzer:   analyzer,
		Dispatcher: disp,
		Now:        fixedClock(time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)),
	})

	require.NoError(t, p.RunCycle(ctx))
	require.Equal(t, 1, analyzer.calls)
	require.Contains(t, disp.blocks, models.BlockAIAnalysis)

	result, day, err := store.LatestAIResult(ctx)
	require.NoError(t, err)
	require.Equal(t, "2026-08-27", day)
	require.Equal(t, "货币政策宽松预期升温", result.CoreTrends)
}

func TestRunCycleCrawlerDisabledStillAnalyzesHistory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Crawler.EnableCrawler = false

	disp := &fakeDispatcher{results: map[string]bool{"feishu": true}}
	p, store := newPipeline(t, cfg, testWatch(), pipeline.Deps{
		Hotlist:    &fakeHotlist{},
		Dispatcher: disp,
		Now:        fixedClock(time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)),
	})

	// Pre-seed today's history as an earlier cycle would have.
	require.NoError(t, store.SaveNewsData(ctx,
		time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC),
		models.CrawlResults{"weibo": {
			"央行宣布降准": {Title: "央行宣布降准", Ranks: []int{2}},
		}}, map[string]string{"weibo": "微博"}))

	require.NoError(t, p.RunCycle(ctx))
	require.Equal(t, 1, disp.calls)
	require.Contains(t, disp.blocks[models.BlockHotTopics].Text, "微博")
}
