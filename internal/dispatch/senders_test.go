package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/dispatch"
)

func feishuSenderFor(t *testing.T, url string) dispatch.Sender {
	t.Helper()
	senders := dispatch.BuildSenders(config.ChannelsConfig{
		Feishu: config.FeishuConfig{WebhookURL: url},
	})
	require.Len(t, senders, 1)
	require.Equal(t, "feishu", senders[0].ID())
	return senders[0]
}

func TestFeishuSenderSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	s := feishuSenderFor(t, srv.URL)
	require.NoError(t, s.Send(context.Background(), "热点内容", false))
	require.Equal(t, "text", got["msg_type"])
}

func TestFeishuSenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":19001,"msg":"param invalid"}`))
	}))
	defer srv.Close()

	err := feishuSenderFor(t, srv.URL).Send(context.Background(), "x", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "param invalid")
}

func TestSenderStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, dispatch.ErrAuth},
		{http.StatusForbidden, dispatch.ErrAuth},
		{http.StatusTooManyRequests, dispatch.ErrRateLimited},
		{http.StatusRequestEntityTooLarge, dispatch.ErrTooLong},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		err := feishuSenderFor(t, srv.URL).Send(context.Background(), "x", false)
		require.ErrorIs(t, err, tt.want, "status %d", tt.status)
		srv.Close()
	}
}

func TestBuildSendersOnlyEnabled(t *testing.T) {
	senders := dispatch.BuildSenders(config.ChannelsConfig{
		Feishu:   config.FeishuConfig{WebhookURL: "https://example.com/hook"},
		Telegram: config.TelegramConfig{BotToken: "t", ChatID: "c"},
		Ntfy:     config.NtfyConfig{ServerURL: "https://ntfy.sh"}, // missing topic, disabled
	})

	ids := make([]string, len(senders))
	for i, s := range senders {
		ids[i] = s.ID()
	}
	require.Equal(t, []string{"feishu", "telegram"}, ids)
}
