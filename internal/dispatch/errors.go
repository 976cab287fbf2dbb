// Package dispatch splits rendered content into channel-sized batches and
// delivers them through the configured senders.
package dispatch

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors used to classify sender failures.
var (
	// ErrAuth marks an authentication rejection. Fatal for the channel,
	// never retried.
	ErrAuth = errors.New("dispatch: authentication rejected")
	// ErrRateLimited marks a rate-limit response. Retried with backoff.
	ErrRateLimited = errors.New("dispatch: rate limited")
	// ErrTooLong marks a transport-level "message too long" rejection.
	// Triggers one plain-text degrade before giving up.
	ErrTooLong = errors.New("dispatch: message too long")
)

// isTransient reports whether the error class is worth retrying: rate limits
// and network timeouts, but never auth or context cancellation.
func isTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
