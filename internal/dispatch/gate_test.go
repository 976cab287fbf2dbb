package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/dispatch"
	"github.com/trendwire/trendwire/internal/models"
)

type memPushStore struct {
	records map[string]models.PushRecord
}

func newMemPushStore() *memPushStore {
	return &memPushStore{records: map[string]models.PushRecord{}}
}

func (s *memPushStore) HasPushedToday(_ context.Context, date string) (bool, error) {
	_, ok := s.records[date]
	return ok, nil
}

func (s *memPushStore) RecordPush(_ context.Context, rec models.PushRecord) error {
	if _, ok := s.records[rec.Date]; ok {
		return nil
	}
	s.records[rec.Date] = rec
	return nil
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 27, hour, minute, 0, 0, time.UTC)
}

func TestGateWindowAndOncePerDay(t *testing.T) {
	cfg := config.PushConfig{
		WindowEnabled: true,
		WindowStart:   "08:00",
		WindowEnd:     "09:00",
		OncePerDay:    true,
	}
	store := newMemPushStore()
	gate := dispatch.NewGate(cfg, store, time.UTC)
	ctx := context.Background()

	ok, err := gate.ShouldDispatch(ctx, at(7, 59))
	require.NoError(t, err)
	require.False(t, ok, "before the window opens")

	ok, err = gate.ShouldDispatch(ctx, at(8, 30))
	require.NoError(t, err)
	require.True(t, ok, "inside the window with no prior record")

	require.NoError(t, gate.Record(ctx, at(8, 30), models.ReportCurrent))

	ok, err = gate.ShouldDispatch(ctx, at(8, 45))
	require.NoError(t, err)
	require.False(t, ok, "daily allowance already consumed")
}

func TestGateWindowEndExclusive(t *testing.T) {
	cfg := config.PushConfig{WindowEnabled: true, WindowStart: "08:00", WindowEnd: "09:00"}
	gate := dispatch.NewGate(cfg, newMemPushStore(), time.UTC)
	ctx := context.Background()

	ok, err := gate.ShouldDispatch(ctx, at(8, 0))
	require.NoError(t, err)
	require.True(t, ok, "start minute is inclusive")

	ok, err = gate.ShouldDispatch(ctx, at(9, 0))
	require.NoError(t, err)
	require.False(t, ok, "end minute is exclusive")
}

func TestGateDisabledWindowAllowsAnyTime(t *testing.T) {
	gate := dispatch.NewGate(config.PushConfig{}, newMemPushStore(), time.UTC)
	ok, err := gate.ShouldDispatch(context.Background(), at(3, 0))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGateRecordIsIdempotentPerDay(t *testing.T) {
	store := newMemPushStore()
	gate := dispatch.NewGate(config.PushConfig{OncePerDay: true}, store, time.UTC)
	ctx := context.Background()

	require.NoError(t, gate.Record(ctx, at(8, 30), models.ReportCurrent))
	require.NoError(t, gate.Record(ctx, at(10, 0), models.ReportDaily))
	require.Len(t, store.records, 1)
	require.Equal(t, models.ReportCurrent, store.records["2026-08-27"].ReportType, "first record of the day wins")
}
