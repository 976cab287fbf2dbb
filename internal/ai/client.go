// Package ai calls an OpenAI-compatible completion gateway to produce the
// structured news analysis.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trendwire/trendwire/internal/config"
)

// ErrAuth marks an authentication rejection from the gateway. It propagates
// immediately without trying fallback models.
var ErrAuth = errors.New("ai: authentication rejected")

// Client is an HTTP client for an OpenAI-compatible chat-completions API.
// Model identifiers use the "provider/model" form; the provider prefix is
// stripped before the request. The first model is primary, the rest are
// fallbacks tried in order on rate-limit or bad-request class failures.
type Client struct {
	baseURL    string
	apiKey     string
	models     []string
	httpClient *http.Client
}

// NewClient builds a client from the AI settings plus the fallback model
// chain from the watch file.
func NewClient(cfg config.AIConfig, fallbacks []string) *Client {
	models := append([]string{cfg.Model}, fallbacks...)
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		models:     models,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// errFallback wraps failures worth handing to the next model in the chain.
type errFallback struct{ err error }

func (e errFallback) Error() string { return e.err.Error() }
func (e errFallback) Unwrap() error { return e.err }

// Complete sends the prompt through the model chain and returns the first
// successful completion text. Authentication errors abort the chain.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for i, model := range c.models {
		text, err := c.complete(ctx, model, systemPrompt, userPrompt)
		if err == nil {
			if i > 0 {
				slog.Info("ai fallback model succeeded", "model", model)
			}
			return text, nil
		}
		if errors.Is(err, ErrAuth) {
			return "", err
		}
		var fb errFallback
		if !errors.As(err, &fb) {
			return "", err
		}
		slog.Warn("ai model failed, trying next", "model", model, "error", err)
		lastErr = err
	}
	return "", fmt.Errorf("ai: all models failed: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: stripProvider(model),
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errFallback{fmt.Errorf("ai: request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("ai: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case http.StatusTooManyRequests, http.StatusBadRequest:
		return "", errFallback{fmt.Errorf("ai: status %d: %s", resp.StatusCode, truncateBody(respBody))}
	default:
		if resp.StatusCode >= 500 {
			return "", errFallback{fmt.Errorf("ai: status %d: %s", resp.StatusCode, truncateBody(respBody))}
		}
		return "", fmt.Errorf("ai: status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if result.Error != nil {
		return "", errFallback{fmt.Errorf("ai: api error: %s", result.Error.Message)}
	}
	if len(result.Choices) == 0 {
		return "", errFallback{fmt.Errorf("ai: empty choices")}
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", errFallback{fmt.Errorf("ai: empty completion")}
	}
	return text, nil
}

// stripProvider drops the "provider/" prefix of a LiteLLM-style identifier.
func stripProvider(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
