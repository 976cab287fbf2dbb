package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

// PushStore persists the once-per-day push records the gate decides on.
// Implementations must make RecordPush idempotent per (date, report type) so
// overlapping cycles cannot double-claim the daily allowance.
type PushStore interface {
	HasPushedToday(ctx context.Context, date string) (bool, error)
	RecordPush(ctx context.Context, rec models.PushRecord) error
}

// Gate suppresses dispatch cycles outside the configured daily time window
// and, when once-per-day is on, after the day's first successful push.
type Gate struct {
	cfg   config.PushConfig
	store PushStore
	loc   *time.Location

	mu sync.Mutex
}

// NewGate builds a gate over the given push settings. A nil location falls
// back to UTC.
func NewGate(cfg config.PushConfig, store PushStore, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{cfg: cfg, store: store, loc: loc}
}

// ShouldDispatch reports whether a dispatch cycle may run at the given
// instant. The window check is [start, end) at minute granularity; the
// once-per-day check consults the push store regardless of report type.
func (g *Gate) ShouldDispatch(ctx context.Context, now time.Time) (bool, error) {
	now = now.In(g.loc)

	if g.cfg.WindowEnabled && !g.inWindow(now) {
		return false, nil
	}

	if g.cfg.OncePerDay {
		pushed, err := g.store.HasPushedToday(ctx, now.Format("2006-01-02"))
		if err != nil {
			return false, fmt.Errorf("dispatch: check push record: %w", err)
		}
		if pushed {
			return false, nil
		}
	}
	return true, nil
}

// Record claims the day's push allowance. Callers invoke it only after at
// least one channel reported a successful send. The mutex keeps the
// read-then-write atomic against concurrent cycles in this process; the
// store's conditional write covers cycles in other processes.
func (g *Gate) Record(ctx context.Context, now time.Time, reportType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now = now.In(g.loc)
	rec := models.PushRecord{
		Date:       now.Format("2006-01-02"),
		ReportType: reportType,
		PushedAt:   now.Format(time.RFC3339),
	}
	if err := g.store.RecordPush(ctx, rec); err != nil {
		return fmt.Errorf("dispatch: record push: %w", err)
	}
	return nil
}

func (g *Gate) inWindow(now time.Time) bool {
	start, okStart := clockMinutes(g.cfg.WindowStart)
	end, okEnd := clockMinutes(g.cfg.WindowEnd)
	if !okStart || !okEnd {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute < end
}

func clockMinutes(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}
