package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/audit"
)

const (
	// healthCheckTimeout bounds each dependency check made by GET /health.
	healthCheckTimeout = 2 * time.Second

	// refreshWaitTimeout caps how long POST /refresh waits for its cycle. It
	// stays under the default write timeout so the 503 still reaches the caller.
	refreshWaitTimeout = 20 * time.Second
)

// Health status values.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
	healthDown     = "down"
)

// controllerHealth summarises the latest refresh cycle.
type controllerHealth struct {
	Host        string    `json:"host"`
	Refreshed   bool      `json:"refreshed"`
	LastRefresh time.Time `json:"last_refresh,omitzero"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// handleHealth reports the bridge status.
//
// A failing dependency check answers 503 with status "down". A failed
// controller refresh keeps 200 but reports "degraded"; polling retries on
// its own schedule.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthOK
	code := http.StatusOK

	ctrl := controllerHealth{Host: s.coordinator.Host()}
	if last, ok := s.coordinator.LastRefresh(); ok {
		ctrl.Refreshed = true
		ctrl.LastRefresh = last.StartedAt.UTC()
		ctrl.DurationMS = last.Duration.Milliseconds()
		if last.Err != nil {
			ctrl.LastError = last.Err.Error()
			status = healthDegraded
		}
	}

	checks := make(map[string]string, len(s.checks))
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = healthDown
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = healthOK
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"controller":     ctrl,
		"checks":         checks,
		"entities":       s.coordinator.Registry().GetStats(),
		"ws_clients":     s.hub.ClientCount(),
	})
}

// handleMetrics serves the Prometheus exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeUnavailable(w, "metrics disabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}

// handleGetInfo returns the controller metadata. It never fails: missing
// fields fall back to defaults derived from the host.
func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.DeviceInfo(r.Context()))
}

// handleInvalidateInfo drops the cached controller metadata so the next
// read fetches it again.
func (s *Server) handleInvalidateInfo(w http.ResponseWriter, r *http.Request) {
	s.coordinator.InvalidateDeviceInfo()
	s.logger.Info("controller metadata invalidated", "operator", operatorName(r))
	s.recordAudit(r, audit.Entry{Action: audit.ActionInvalidateInfo, Target: s.coordinator.Host()})
	writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated"})
}

// handleRefresh runs one synchronization cycle immediately and reports it.
// The wait is capped at refreshWaitTimeout; the cycle itself is not bound to
// the request.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("refresh requested via API", "operator", operatorName(r))

	ctx, cancel := context.WithTimeout(r.Context(), refreshWaitTimeout)
	defer cancel()
	_, err := s.refresher.Refresh(ctx)
	if ctx.Err() != nil {
		writeUnavailable(w, "refresh still running")
		return
	}
	last, _ := s.coordinator.LastRefresh()
	s.recordAudit(r, audit.Entry{
		Action:  audit.ActionRefresh,
		Target:  s.coordinator.Host(),
		Outcome: commandOutcome(err == nil),
	})
	if err != nil {
		s.logger.Warn("requested refresh failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status": "failed",
			"error":  err.Error(),
			"stats":  last.Stats,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"duration_ms": last.Duration.Milliseconds(),
		"changed":     len(last.Changed),
		"stats":       last.Stats,
	})
}
