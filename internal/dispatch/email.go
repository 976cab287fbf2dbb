package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/trendwire/trendwire/internal/config"
)

// emailSender delivers batches over SMTP as plain-text mail.
type emailSender struct {
	cfg config.EmailConfig
}

func newEmailSender(cfg config.EmailConfig) *emailSender {
	return &emailSender{cfg: cfg}
}

func (s *emailSender) ID() string  { return "email" }
func (s *emailSender) Budget() int { return emailBudget }

func (s *emailSender) Send(ctx context.Context, text string, plain bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := text
	if !plain {
		body = StripMarkdown(text)
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.cfg.From + "\r\n")
	msg.WriteString("To: " + s.cfg.To + "\r\n")
	msg.WriteString("Subject: " + defaultReportTitle + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	recipients := strings.Split(s.cfg.To, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, recipients, []byte(msg.String())); err != nil {
		if strings.Contains(err.Error(), "535") || strings.Contains(err.Error(), "534") {
			return fmt.Errorf("email: %w: %v", ErrAuth, err)
		}
		return fmt.Errorf("email: %w", err)
	}
	return nil
}
