package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/trendwire/trendwire/internal/config"
)

// telegramSender delivers batches through the bot API's sendMessage call.
type telegramSender struct {
	cfg    config.TelegramConfig
	client *http.Client
}

func (s *telegramSender) ID() string  { return "telegram" }
func (s *telegramSender) Budget() int { return telegramBudget }

func (s *telegramSender) Send(ctx context.Context, text string, plain bool) error {
	url := "https://api.telegram.org/bot" + s.cfg.BotToken + "/sendMessage"

	payload := map[string]any{
		"chat_id": s.cfg.ChatID,
		"text":    text,
	}
	if !plain {
		payload["parse_mode"] = "HTML"
	}

	data, err := postJSON(ctx, s.client, url, payload)
	if err != nil {
		// The bot API answers 400 with a description for oversized text;
		// surface that as the too-long class so the dispatcher degrades.
		if strings.Contains(strings.ToLower(string(data)), "message is too long") {
			return fmt.Errorf("telegram: %w", ErrTooLong)
		}
		return fmt.Errorf("telegram: %w", err)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("telegram: decode response: %w", err)
	}
	if !result.OK {
		if strings.Contains(strings.ToLower(result.Description), "message is too long") {
			return fmt.Errorf("telegram: %w", ErrTooLong)
		}
		return fmt.Errorf("telegram: %s", result.Description)
	}
	return nil
}
