package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/trendwire/trendwire/internal/models"
)

// Sender delivers one bounded message to a single channel. Budget is the
// channel's nominal batch size in bytes; the splitter subtracts the header
// reserve itself. When plain is set the text has already been stripped of
// rich formatting and the sender must pick its plain-text payload mode.
type Sender interface {
	ID() string
	Budget() int
	Send(ctx context.Context, text string, plain bool) error
}

const (
	defaultMaxWorkers = 4
	defaultRetries    = 2
)

// Dispatcher fans rendered content out to every configured channel.
type Dispatcher struct {
	senders    []Sender
	maxWorkers int
	retries    int
	// pace throttles consecutive sends on the same channel.
	pace rate.Limit
}

// Option adjusts dispatcher behavior.
type Option func(*Dispatcher)

// WithMaxWorkers bounds the number of channels dispatched concurrently.
func WithMaxWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxWorkers = n
		}
	}
}

// WithRetries sets the per-message retry budget for transient errors.
func WithRetries(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.retries = n
		}
	}
}

// NewDispatcher builds a dispatcher over the given senders.
func NewDispatcher(senders []Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		senders:    senders,
		maxWorkers: defaultMaxWorkers,
		retries:    defaultRetries,
		pace:       rate.Every(time.Second),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchAll splits the content per channel budget and sends the batches to
// every channel concurrently, one channel never aborting another. The result
// maps channel ID to success; overall success is any true value. Zero
// senders or empty content is a silent no-op.
func (d *Dispatcher) DispatchAll(ctx context.Context, blocks map[string]models.ContentBlock) map[string]bool {
	results := make(map[string]bool, len(d.senders))
	if len(d.senders) == 0 || len(blocks) == 0 {
		return results
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.maxWorkers)
	)
	for _, s := range d.senders {
		wg.Add(1)
		go func(s Sender) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ok := d.dispatchChannel(ctx, s, blocks)
			mu.Lock()
			results[s.ID()] = ok
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return results
}

// AnySucceeded reports whether at least one channel delivered.
func AnySucceeded(results map[string]bool) bool {
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

func (d *Dispatcher) dispatchChannel(ctx context.Context, s Sender, blocks map[string]models.ContentBlock) bool {
	messages := Split(blocks, s.Budget())
	if len(messages) == 0 {
		return false
	}

	limiter := rate.NewLimiter(d.pace, 1)
	total := len(messages)
	for i, msg := range messages {
		if err := limiter.Wait(ctx); err != nil {
			slog.Warn("dispatch canceled", "channel", s.ID(), "error", err)
			return false
		}

		text := msg.Text
		if total > 1 {
			text = fmt.Sprintf("(%d/%d)\n%s", i+1, total, text)
		}
		if err := d.sendWithRetry(ctx, s, text); err != nil {
			slog.Error("channel send failed",
				"channel", s.ID(), "key", msg.Key, "batch", i+1, "total", total, "error", err)
			return false
		}
		slog.Info("channel batch sent", "channel", s.ID(), "key", msg.Key, "batch", i+1, "total", total)
	}
	return true
}

// sendWithRetry applies the retry budget for transient failures, degrades
// once to plain text on a too-long rejection, and fails fast on auth errors.
func (d *Dispatcher) sendWithRetry(ctx context.Context, s Sender, text string) error {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(200+100*attempt) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.Send(ctx, text, false)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuth) {
			return err
		}
		if errors.Is(err, ErrTooLong) {
			// The splitter already bounded the message; strip formatting
			// once and resend as plain text before giving up.
			if plainErr := s.Send(ctx, StripMarkdown(text), true); plainErr != nil {
				return fmt.Errorf("plain-text degrade failed: %w", plainErr)
			}
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}
