package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/crawler"
)

func crawlerConfig(apiBase string) config.CrawlerConfig {
	return config.CrawlerConfig{
		APIBase:    apiBase,
		Retries:    0,
		TimeoutSec: 5,
	}
}

func TestCrawlSourcesAssignsRanks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "weibo", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"status":"success","items":[
			{"title":"央行宣布降准","url":"https://x/1","mobileUrl":"https://m.x/1"},
			{"title":"台风登陆广东","url":"https://x/2"},
			{"title":"央行宣布降准","url":"https://x/1"}
		]}`)
	}))
	defer srv.Close()

	f := crawler.NewFetcher(crawlerConfig(srv.URL))
	results, idToName, failed := f.CrawlSources(context.Background(), []config.Platform{
		{ID: "weibo", Name: "微博"},
	})

	require.Empty(t, failed)
	require.Equal(t, "微博", idToName["weibo"])

	meta := results["weibo"]["央行宣布降准"]
	require.Equal(t, []int{1, 3}, meta.Ranks, "repeat listing unions ranks")
	require.Equal(t, "https://m.x/1", meta.MobileURL)
	require.Equal(t, []int{2}, results["weibo"]["台风登陆广东"].Ranks)
}

func TestCrawlSourcesCollectsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "weibo":
			fmt.Fprint(w, `{"status":"cache","items":[{"title":"缓存标题"}]}`)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `{"status":"error"}`)
		}
	}))
	defer srv.Close()

	f := crawler.NewFetcher(crawlerConfig(srv.URL))
	results, _, failed := f.CrawlSources(context.Background(), []config.Platform{
		{ID: "weibo", Name: "微博"},
		{ID: "broken"},
		{ID: "rejected"},
	})

	require.ElementsMatch(t, []string{"broken", "rejected"}, failed)
	require.Len(t, results, 1, "cache status still counts as data")
	require.Contains(t, results["weibo"], "缓存标题")
}

func TestCrawlSourcesRetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"status":"success","items":[{"title":"重试成功"}]}`)
	}))
	defer srv.Close()

	cfg := crawlerConfig(srv.URL)
	cfg.Retries = 2
	f := crawler.NewFetcher(cfg)
	results, _, failed := f.CrawlSources(context.Background(), []config.Platform{{ID: "weibo"}})

	require.Empty(t, failed)
	require.Contains(t, results["weibo"], "重试成功")
	require.Equal(t, 2, calls)
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><title>AI 芯片出口新规</title><link>https://feed/1</link>
<description>详细报道内容</description>
<pubDate>%s</pubDate><author>记者甲</author></item>
<item><title>旧闻一则</title><link>https://feed/2</link>
<pubDate>%s</pubDate></item>
</channel></rss>`

func TestRSSFetcherFiltersStale(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-24 * time.Hour).Format(time.RFC1123Z)
	stale := now.Add(-10 * 24 * time.Hour).Format(time.RFC1123Z)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, sampleRSS, fresh, stale)
	}))
	defer srv.Close()

	f := crawler.NewRSSFetcher(config.CrawlerConfig{TimeoutSec: 5}, func() time.Time { return now })
	items, standalone, failed := f.FetchAll(context.Background(), []config.RSSFeed{
		{ID: "tech", Name: "科技快讯", URL: srv.URL, MaxAgeDays: 3},
	})

	require.Empty(t, failed)
	require.Empty(t, standalone)
	require.Len(t, items, 1)
	require.Equal(t, "AI 芯片出口新规", items[0].Title)
	require.Equal(t, "科技快讯", items[0].FeedName)
	require.Equal(t, "记者甲", items[0].Author)
}

func TestRSSFetcherStandaloneFeedsBecomeSections(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, sampleRSS,
			now.Format(time.RFC1123Z), now.Format(time.RFC1123Z))
	}))
	defer srv.Close()

	f := crawler.NewRSSFetcher(config.CrawlerConfig{TimeoutSec: 5}, nil)
	items, standalone, failed := f.FetchAll(context.Background(), []config.RSSFeed{
		{ID: "daily", Name: "每日精选", URL: srv.URL, Standalone: true},
	})

	require.Empty(t, failed)
	require.Empty(t, items, "standalone feeds bypass keyword matching")
	require.Len(t, standalone, 1)
	require.Equal(t, "每日精选", standalone[0].Name)
	require.Len(t, standalone[0].Items, 2)
}

func TestRSSFetcherParsesAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<entry><title>Atom 条目</title>
<link rel="alternate" href="https://atom/1"/>
<summary>摘要</summary>
<updated>%s</updated>
<author><name>作者乙</name></author></entry>
</feed>`, time.Now().UTC().Format(time.RFC3339))
	}))
	defer srv.Close()

	f := crawler.NewRSSFetcher(config.CrawlerConfig{TimeoutSec: 5}, nil)
	items, _, failed := f.FetchAll(context.Background(), []config.RSSFeed{
		{ID: "blog", Name: "博客", URL: srv.URL},
	})

	require.Empty(t, failed)
	require.Len(t, items, 1)
	require.Equal(t, "https://atom/1", items[0].URL)
	require.Equal(t, "作者乙", items[0].Author)
}

func TestRSSFetcherReportsBadFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not xml at all")
	}))
	defer srv.Close()

	f := crawler.NewRSSFetcher(config.CrawlerConfig{TimeoutSec: 5}, nil)
	_, _, failed := f.FetchAll(context.Background(), []config.RSSFeed{
		{ID: "bad", URL: srv.URL},
	})
	require.Equal(t, []string{"bad"}, failed)
}
