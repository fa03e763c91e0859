package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/nerrad567/mannito-bridge/internal/audit"
	"github.com/nerrad567/mannito-bridge/internal/auth"
)

func TestAudit_RecordsOperatorActions(t *testing.T) {
	tests := []struct {
		name        string
		reject      bool
		method      string
		path        string
		body        string
		role        auth.Role
		wantAction  string
		wantTarget  string
		wantOutcome string
	}{
		{"state", false, http.MethodPut, "/api/v1/devices/FAN1/state", `{"on":true}`, auth.RoleOperator, audit.ActionDeviceState, "FAN1", audit.OutcomeSuccess},
		{"state rejected", true, http.MethodPut, "/api/v1/devices/FAN1/state", `{"on":false}`, auth.RoleOperator, audit.ActionDeviceState, "FAN1", audit.OutcomeFailure},
		{"powerlevel", false, http.MethodPut, "/api/v1/devices/FAN1/powerlevel", `{"level":90}`, auth.RoleOperator, audit.ActionDevicePower, "FAN1", audit.OutcomeSuccess},
		{"refresh", false, http.MethodPost, "/api/v1/refresh", "", auth.RoleAdmin, audit.ActionRefresh, testHost, audit.OutcomeSuccess},
		{"invalidate", false, http.MethodPost, "/api/v1/info/invalidate", "", auth.RoleAdmin, audit.ActionInvalidateInfo, testHost, audit.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trail := &mockAudit{}
			srv, coord := testServerWith(t, func(d *Deps) { d.Audit = trail })
			coord.accept = !tt.reject

			do(t, srv.buildRouter(), tt.method, tt.path, tt.body, tokenFor(t, tt.role))

			entries := trail.recorded()
			if len(entries) != 1 {
				t.Fatalf("recorded %d entries, want 1", len(entries))
			}
			e := entries[0]
			if e.Action != tt.wantAction || e.Target != tt.wantTarget || e.Outcome != tt.wantOutcome {
				t.Errorf("entry = %+v, want %s/%s/%s", e, tt.wantAction, tt.wantTarget, tt.wantOutcome)
			}
			if want := string(tt.role) + "-user"; e.Operator != want {
				t.Errorf("operator = %q, want %q", e.Operator, want)
			}
		})
	}
}

func TestAudit_ValidationFailuresNotRecorded(t *testing.T) {
	trail := &mockAudit{}
	srv, _ := testServerWith(t, func(d *Deps) { d.Audit = trail })
	router := srv.buildRouter()
	token := tokenFor(t, auth.RoleOperator)

	do(t, router, http.MethodPut, "/api/v1/devices/FAN1/powerlevel", `{"level":999}`, token)
	do(t, router, http.MethodPut, "/api/v1/devices/PUMP9/state", `{"on":true}`, token)

	if n := len(trail.recorded()); n != 0 {
		t.Errorf("recorded %d entries, want 0", n)
	}
}

func TestAudit_Login(t *testing.T) {
	trail := &mockAudit{}
	srv, _ := testServerWith(t, func(d *Deps) { d.Audit = trail })
	router := srv.buildRouter()

	do(t, router, http.MethodPost, "/api/v1/auth/login",
		fmt.Sprintf(`{"username":"grower","password":%q}`, testPassword), "")
	do(t, router, http.MethodPost, "/api/v1/auth/login", `{"username":"grower","password":"wrong"}`, "")

	entries := trail.recorded()
	if len(entries) != 2 {
		t.Fatalf("recorded %d entries, want 2", len(entries))
	}
	if entries[0].Outcome != audit.OutcomeSuccess || entries[0].Operator != "grower" {
		t.Errorf("success entry = %+v", entries[0])
	}
	if entries[1].Outcome != audit.OutcomeDenied || entries[1].Action != audit.ActionLogin {
		t.Errorf("denied entry = %+v", entries[1])
	}
}

func TestAudit_StoreErrorDoesNotFailCommand(t *testing.T) {
	trail := &mockAudit{err: errors.New("database is locked")}
	srv, _ := testServerWith(t, func(d *Deps) { d.Audit = trail })

	w := do(t, srv.buildRouter(), http.MethodPut, "/api/v1/devices/FAN1/state", `{"on":true}`, tokenFor(t, auth.RoleOperator))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestListAudit(t *testing.T) {
	trail := &mockAudit{entries: []audit.Entry{{ID: "aud-1", Action: audit.ActionRefresh, Outcome: audit.OutcomeSuccess}}}
	srv, _ := testServerWith(t, func(d *Deps) { d.Audit = trail })
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/audit?action=controller.refresh&limit=10&offset=5", "", tokenFor(t, auth.RoleAdmin))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := decodeBody(t, w)["total"]; got != float64(1) {
		t.Errorf("total = %v, want 1", got)
	}
	f := trail.filters[0]
	if f.Action != audit.ActionRefresh || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}
}

func TestListAudit_Errors(t *testing.T) {
	tests := []struct {
		name  string
		trail *mockAudit
		path  string
		role  auth.Role
		want  int
	}{
		{"operator forbidden", &mockAudit{}, "/api/v1/audit", auth.RoleOperator, http.StatusForbidden},
		{"bad limit", &mockAudit{}, "/api/v1/audit?limit=0", auth.RoleAdmin, http.StatusBadRequest},
		{"bad offset", &mockAudit{}, "/api/v1/audit?offset=-1", auth.RoleAdmin, http.StatusBadRequest},
		{"no store", nil, "/api/v1/audit", auth.RoleAdmin, http.StatusServiceUnavailable},
		{"store error", &mockAudit{err: errors.New("disk I/O error")}, "/api/v1/audit", auth.RoleAdmin, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServerWith(t, func(d *Deps) {
				if tt.trail != nil {
					d.Audit = tt.trail
				}
			})
			w := do(t, srv.buildRouter(), http.MethodGet, tt.path, "", tokenFor(t, tt.role))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
