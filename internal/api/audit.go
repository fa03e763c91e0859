package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/audit"
)

// auditWriteTimeout bounds one audit insert so a slow disk never stalls a
// response.
const auditWriteTimeout = 2 * time.Second

// recordAudit stores one operator action. Failures are logged, never
// surfaced to the caller.
func (s *Server) recordAudit(r *http.Request, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if entry.Operator == "" {
		entry.Operator = operatorName(r)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()
	if err := s.audit.Record(ctx, &entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			"action", entry.Action,
			"target", entry.Target,
			"error", err,
		)
	}
}

// commandOutcome maps a coordinator acceptance flag to an audit outcome.
func commandOutcome(accepted bool) string {
	if accepted {
		return audit.OutcomeSuccess
	}
	return audit.OutcomeFailure
}

// handleListAudit returns recorded operator actions, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit log not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		Target:   q.Get("target"),
		Operator: q.Get("operator"),
	}
	for _, v := range []string{filter.Action, filter.Target, filter.Operator} {
		if len(v) > maxQueryParamLen {
			writeBadRequest(w, "query parameter too long")
			return
		}
	}

	var err error
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = parseHistoryLimit(raw); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}
	if raw := q.Get("offset"); raw != "" {
		filter.Offset, err = strconv.Atoi(raw)
		if err != nil || filter.Offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
