package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/audit"
	"github.com/nerrad567/mannito-bridge/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Role        auth.Role `json:"role"`

	Permissions []auth.Permission `json:"permissions"`
}

// ticketStore holds single-use WebSocket tickets until they are consumed
// or expire.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

type ticketEntry struct {
	expiresAt time.Time
	username  string
	role      auth.Role
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry), now: time.Now}
}

// issue returns a fresh 128-bit ticket bound to the caller's identity.
func (t *ticketStore) issue(username string, role auth.Role) string {
	ticket := rand.Text()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{expiresAt: t.now().Add(ticketTTL), username: username, role: role}
	t.mu.Unlock()
	return ticket
}

// consume removes the ticket and reports whether it was still valid.
func (t *ticketStore) consume(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	entry, ok := t.tickets[ticket]
	delete(t.tickets, ticket)
	t.mu.Unlock()

	if !ok || !t.now().Before(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for ticket, entry := range t.tickets {
		if !now.Before(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// handleLogin verifies a configured operator and issues an access token.
// Failures are audited and always answer the same 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	op, err := s.operators.Authenticate(req.Username, req.Password)
	if err != nil {
		s.recordAudit(r, audit.Entry{Action: audit.ActionLogin, Operator: req.Username, Outcome: audit.OutcomeDenied})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := s.accessTokenTTL()
	signed, err := auth.GenerateAccessToken(op, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to generate access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("operator logged in", "username", op.Username, "role", op.Role)
	s.recordAudit(r, audit.Entry{
		Action:   audit.ActionLogin,
		Operator: op.Username,
		Details:  map[string]any{"role": op.Role},
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		Role:        op.Role,
		Permissions: auth.PermissionsForRole(op.Role),
	})
}

// handleWSTicket swaps the caller's bearer token for a ticket that
// GET /ws accepts in its query string, so the JWT never lands in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket := s.tickets.issue(claims.Subject, claims.Role)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// cleanTicketsLoop removes expired tickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
