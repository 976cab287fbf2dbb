package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trendwire/trendwire/internal/config"
)

// Nominal per-channel batch sizes in bytes.
const (
	feishuBudget   = 29000
	dingtalkBudget = 20000
	weworkBudget   = 4000
	telegramBudget = 4000
	slackBudget    = 4000
	ntfyBudget     = 3800
	barkBudget     = 3600
	webhookBudget  = 4000
	emailBudget    = 100000
)

const defaultReportTitle = "Trendwire 热点分析报告"

// BuildSenders assembles one Sender per enabled channel, in a stable order.
func BuildSenders(cfg config.ChannelsConfig) []Sender {
	client := &http.Client{Timeout: 30 * time.Second}

	var senders []Sender
	if cfg.Feishu.Enabled() {
		senders = append(senders, &feishuSender{url: cfg.Feishu.WebhookURL, client: client})
	}
	if cfg.DingTalk.Enabled() {
		senders = append(senders, &dingtalkSender{url: cfg.DingTalk.WebhookURL, client: client})
	}
	if cfg.WeCom.Enabled() {
		senders = append(senders, &weworkSender{cfg: cfg.WeCom, client: client})
	}
	if cfg.Telegram.Enabled() {
		senders = append(senders, &telegramSender{cfg: cfg.Telegram, client: client})
	}
	if cfg.Slack.Enabled() {
		senders = append(senders, &slackSender{url: cfg.Slack.WebhookURL, client: client})
	}
	if cfg.Ntfy.Enabled() {
		senders = append(senders, &ntfySender{cfg: cfg.Ntfy, client: client})
	}
	if cfg.Bark.Enabled() {
		senders = append(senders, &barkSender{url: cfg.Bark.URL, client: client})
	}
	if cfg.Webhook.Enabled() {
		senders = append(senders, &webhookSender{url: cfg.Webhook.URL, client: client})
	}
	if cfg.Email.Enabled() {
		senders = append(senders, newEmailSender(cfg.Email))
	}
	return senders
}

// postJSON sends a JSON payload and returns the response body after mapping
// the HTTP status to the sender error classes.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, data); err != nil {
		return data, err
	}
	return data, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: status %d", ErrTooLong, status)
	case status < 200 || status > 299:
		return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

// feishuSender posts text batches to a Feishu group-bot webhook.
type feishuSender struct {
	url    string
	client *http.Client
}

func (s *feishuSender) ID() string  { return "feishu" }
func (s *feishuSender) Budget() int { return feishuBudget }

func (s *feishuSender) Send(ctx context.Context, text string, plain bool) error {
	payload := map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	}
	data, err := postJSON(ctx, s.client, s.url, payload)
	if err != nil {
		return fmt.Errorf("feishu: %w", err)
	}

	var result struct {
		Code          int    `json:"code"`
		StatusCode    int    `json:"StatusCode"`
		Msg           string `json:"msg"`
		StatusMessage string `json:"StatusMessage"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("feishu: decode response: %w", err)
	}
	if result.Code != 0 && result.StatusCode != 0 {
		msg := result.Msg
		if msg == "" {
			msg = result.StatusMessage
		}
		return fmt.Errorf("feishu: code %d: %s", result.Code, msg)
	}
	return nil
}

// dingtalkSender posts markdown batches to a DingTalk group-bot webhook.
type dingtalkSender struct {
	url    string
	client *http.Client
}

func (s *dingtalkSender) ID() string  { return "dingtalk" }
func (s *dingtalkSender) Budget() int { return dingtalkBudget }

func (s *dingtalkSender) Send(ctx context.Context, text string, plain bool) error {
	var payload map[string]any
	if plain {
		payload = map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": text},
		}
	} else {
		payload = map[string]any{
			"msgtype": "markdown",
			"markdown": map[string]string{
				"title": defaultReportTitle,
				"text":  text,
			},
		}
	}
	data, err := postJSON(ctx, s.client, s.url, payload)
	if err != nil {
		return fmt.Errorf("dingtalk: %w", err)
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("dingtalk: decode response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("dingtalk: errcode %d: %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

// weworkSender posts batches to a WeCom group-bot webhook, in markdown or
// text mode per configuration.
type weworkSender struct {
	cfg    config.WeComConfig
	client *http.Client
}

func (s *weworkSender) ID() string  { return "wework" }
func (s *weworkSender) Budget() int { return weworkBudget }

func (s *weworkSender) Send(ctx context.Context, text string, plain bool) error {
	var payload map[string]any
	if plain || strings.EqualFold(s.cfg.MsgType, "text") {
		payload = map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": text},
		}
	} else {
		payload = map[string]any{
			"msgtype":  "markdown",
			"markdown": map[string]string{"content": text},
		}
	}
	data, err := postJSON(ctx, s.client, s.cfg.WebhookURL, payload)
	if err != nil {
		return fmt.Errorf("wework: %w", err)
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("wework: decode response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("wework: errcode %d: %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

// slackSender posts mrkdwn batches to a Slack incoming webhook.
type slackSender struct {
	url    string
	client *http.Client
}

func (s *slackSender) ID() string  { return "slack" }
func (s *slackSender) Budget() int { return slackBudget }

func (s *slackSender) Send(ctx context.Context, text string, plain bool) error {
	if !plain {
		text = ToMrkdwn(text)
	}
	if _, err := postJSON(ctx, s.client, s.url, map[string]string{"text": text}); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

// ntfySender publishes batches to an ntfy topic as a raw body.
type ntfySender struct {
	cfg    config.NtfyConfig
	client *http.Client
}

func (s *ntfySender) ID() string  { return "ntfy" }
func (s *ntfySender) Budget() int { return ntfyBudget }

func (s *ntfySender) Send(ctx context.Context, text string, plain bool) error {
	url := strings.TrimRight(s.cfg.ServerURL, "/") + "/" + s.cfg.Topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if !plain {
		req.Header.Set("Markdown", "yes")
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	return nil
}

// barkSender pushes batches to a Bark device endpoint.
type barkSender struct {
	url    string
	client *http.Client
}

func (s *barkSender) ID() string  { return "bark" }
func (s *barkSender) Budget() int { return barkBudget }

func (s *barkSender) Send(ctx context.Context, text string, plain bool) error {
	payload := map[string]string{"title": defaultReportTitle}
	if plain {
		payload["body"] = text
	} else {
		payload["markdown"] = text
	}
	if _, err := postJSON(ctx, s.client, s.url, payload); err != nil {
		return fmt.Errorf("bark: %w", err)
	}
	return nil
}

// webhookSender posts batches to a generic JSON endpoint.
type webhookSender struct {
	url    string
	client *http.Client
}

func (s *webhookSender) ID() string  { return "webhook" }
func (s *webhookSender) Budget() int { return webhookBudget }

func (s *webhookSender) Send(ctx context.Context, text string, plain bool) error {
	payload := map[string]string{
		"title":   defaultReportTitle,
		"content": text,
	}
	if _, err := postJSON(ctx, s.client, s.url, payload); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}
