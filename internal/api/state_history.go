package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mannito-bridge/internal/device"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// maxQueryParamLen bounds ids and free-text query values.
	maxQueryParamLen = 256
)

var (
	errLimitInvalid  = errors.New("limit must be a positive integer")
	errLimitTooLarge = errors.New("limit exceeds maximum of " + strconv.Itoa(maxHistoryLimit))
	errSinceInvalid  = errors.New("since must be RFC3339, Unix seconds or a duration such as 15m")
)

type historyResponse struct {
	DeviceID string                     `json:"device_id"`
	Since    *time.Time                 `json:"since,omitempty"`
	Count    int                        `json:"count"`
	History  []device.StateHistoryEntry `json:"history"`
}

// handleGetDeviceHistory serves GET /devices/{id}/history?limit=&since=.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	q := device.HistoryQuery{}
	var err error
	if q.Limit, err = parseHistoryLimit(r.URL.Query().Get("limit")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if q.Since, err = parseSince(r.URL.Query().Get("since"), time.Now()); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeUnavailable(w, "state history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), dev.ID, q)
	if err != nil {
		s.logger.Error("failed to load device history", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}

	resp := historyResponse{DeviceID: dev.ID, Count: len(entries), History: entries}
	if !q.Since.IsZero() {
		resp.Since = &q.Since
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseHistoryLimit reads a page size. Empty means the default; values
// above maxHistoryLimit are rejected rather than clamped.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil || n < 1:
		return 0, errLimitInvalid
	case n > maxHistoryLimit:
		return 0, errLimitTooLarge
	}
	return n, nil
}

// parseSince turns the since parameter into an absolute UTC time. It accepts
// an RFC3339 timestamp, Unix seconds (fractions allowed) or a positive Go
// duration counted back from now. Empty yields the zero time.
func parseSince(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}

	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return time.Time{}, errSinceInvalid
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), nil
	}

	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, errSinceInvalid
}
