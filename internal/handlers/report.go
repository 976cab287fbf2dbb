package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/trendwire/trendwire/internal/storage"
)

// ReportHandler groups the report API handlers. All endpoints are read-only
// views over the storage backend.
type ReportHandler struct {
	Store storage.Backend
	Loc   *time.Location
	// Now is overridable in tests; nil means wall clock.
	Now func() time.Time
}

func (h *ReportHandler) today() string {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if h.Loc != nil {
		now = now.In(h.Loc)
	}
	return now.Format("2006-01-02")
}

// GetLatestAnalysis handles GET /api/analysis/latest.
// Returns the most recent AI research note.
func (h *ReportHandler) GetLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	result, day, err := h.Store.LatestAIResult(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoAIResult) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis available"})
			return
		}
		slog.Error("get latest analysis", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":     day,
		"analysis": result,
	})
}

// GetTodayTitles handles GET /api/titles/today.
// Returns today's accumulated title history per source.
func (h *ReportHandler) GetTodayTitles(w http.ResponseWriter, r *http.Request) {
	day := h.today()
	history, names, err := h.Store.ReadTodayTitles(r.Context(), day)
	if err != nil {
		slog.Error("read today titles", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	total := 0
	for _, titles := range history {
		total += len(titles)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":         day,
		"source_names": names,
		"titles":       history,
		"total":        total,
	})
}

// GetNewTitles handles GET /api/titles/new.
// Returns titles first observed in the most recent crawl batch.
func (h *ReportHandler) GetNewTitles(w http.ResponseWriter, r *http.Request) {
	day := h.today()
	newTitles, err := h.Store.DetectNewTitles(r.Context(), day)
	if err != nil {
		slog.Error("detect new titles", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":   day,
		"titles": newTitles,
	})
}

// GetPushStatus handles GET /api/push/status.
// Reports whether today's push allowance has been claimed.
func (h *ReportHandler) GetPushStatus(w http.ResponseWriter, r *http.Request) {
	day := h.today()
	pushed, err := h.Store.HasPushedToday(r.Context(), day)
	if err != nil {
		slog.Error("check push status", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":   day,
		"pushed": pushed,
	})
}
