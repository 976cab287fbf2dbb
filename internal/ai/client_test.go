package ai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/ai"
	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func clientFor(url string, fallbacks ...string) *ai.Client {
	return ai.NewClient(config.AIConfig{
		APIKey:     "sk-test",
		BaseURL:    url,
		Model:      "openai/gpt-4o-mini",
		TimeoutSec: 5,
	}, fallbacks)
}

func TestCompleteStripsProviderPrefix(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(completion("ok")))
	}))
	defer srv.Close()

	text, err := clientFor(srv.URL).Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	require.Equal(t, "gpt-4o-mini", gotModel)
}

func TestCompleteFallsBackOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completion("fallback answer")))
	}))
	defer srv.Close()

	text, err := clientFor(srv.URL, "deepseek/deepseek-chat").Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	require.Equal(t, "fallback answer", text)
	require.EqualValues(t, 2, calls.Load())
}

func TestCompleteAuthErrorSkipsFallbacks(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := clientFor(srv.URL, "deepseek/deepseek-chat").Complete(context.Background(), "sys", "user")
	require.ErrorIs(t, err, ai.ErrAuth)
	require.EqualValues(t, 1, calls.Load(), "auth failures never consult fallback models")
}

func TestCompleteAllModelsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := clientFor(srv.URL, "deepseek/deepseek-chat").Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	require.Contains(t, err.Error(), "all models failed")
}

func TestAnalyzerRawFallbackStillSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completion("今天市场主线是降准。")))
	}))
	defer srv.Close()

	analyzer := ai.NewAnalyzer(clientFor(srv.URL), 50, nil)
	result := analyzer.Analyze(context.Background(), []models.StatEntry{
		{Word: "央行", Count: 1, Titles: []models.TitleItem{{Title: "央行宣布降准", SourceName: "微博"}}},
	}, nil, nil)

	require.True(t, result.Success, "degraded report still ships")
	require.True(t, result.RawFallback)
	require.Equal(t, "今天市场主线是降准。", result.CoreTrends)
	require.Empty(t, result.StructuredItems)
	require.Equal(t, 1, result.HotlistCount)
}

func TestAnalyzerEmptyInputFails(t *testing.T) {
	analyzer := ai.NewAnalyzer(clientFor("http://unused"), 50, nil)
	result := analyzer.Analyze(context.Background(), nil, nil, nil)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "no news content")
}

func TestAnalyzerCapsPromptNews(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Messages[1].Content
		w.Write([]byte(completion(`{"core_trends":"x"}`)))
	}))
	defer srv.Close()

	titles := make([]models.TitleItem, 5)
	for i := range titles {
		titles[i] = models.TitleItem{Title: "新闻" + string(rune('A'+i))}
	}
	analyzer := ai.NewAnalyzer(clientFor(srv.URL), 3, nil)
	result := analyzer.Analyze(context.Background(), []models.StatEntry{{Word: "AI", Titles: titles}}, nil, nil)

	require.True(t, result.Success)
	require.Contains(t, prompt, "新闻C")
	require.NotContains(t, prompt, "新闻D", "prompt stops at the configured cap")
}
