package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/audit"
	"github.com/nerrad567/mannito-bridge/internal/auth"
	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/logging"
)

const (
	testHost     = "10.0.0.5"
	testSecret   = "test-secret-that-is-at-least-32-characters"
	testPassword = "correct horse battery staple"
)

var (
	hashOnce sync.Once
	testHash string
)

// passwordHash hashes testPassword once per test binary; argon2id is slow.
func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			panic(err)
		}
		testHash = h
	})
	return testHash
}

// mockCoordinator implements Coordinator on top of a real registry.
type mockCoordinator struct {
	mu          sync.Mutex
	registry    *device.Registry
	accept      bool
	probe       controller.Payload
	probeErr    error
	refreshErr  error
	last        coordinator.RefreshResult
	haveLast    bool
	invalidated int
	refreshes   int
	calls       []string
}

func newMockCoordinator() *mockCoordinator {
	r := device.NewRegistry()
	_ = r.UpsertDevice(device.Device{
		ID: "FAN1", UniqueID: device.ScopedID(testHost, "FAN1"), Name: "Fan",
		Type: device.ParseDeviceType("fan"), Power: device.Supported(40, 255),
		Enabled: true, Initialized: true, Responding: true,
	})
	_ = r.UpsertDevice(device.Device{
		ID: "VALVE1", UniqueID: device.ScopedID(testHost, "VALVE1"), Name: "Valve",
		Type: device.ParseDeviceType("valve"), Power: device.Unsupported(),
		Enabled: true, Initialized: true, Responding: false,
	})
	_ = r.UpsertSensor(device.Sensor{
		ID: "CO2", UniqueID: device.ScopedID(testHost, "CO2"), Name: "CO2",
		Type: device.ParseSensorType("co2"), Value: "415", Unit: "ppm",
		Valid: true, Enabled: true, Initialized: true, Responding: true,
	})
	slot := device.NewSlotParameter(testHost, "Default", 0, "AIR_TEMPERATURE", 21.5)
	slot.Available = true
	_ = r.UpsertSlotParameter(slot)

	return &mockCoordinator{
		registry: r,
		accept:   true,
		probe:    controller.Payload{"device_id": "FAN1", "state": true},
	}
}

func (m *mockCoordinator) Host() string               { return testHost }
func (m *mockCoordinator) Registry() *device.Registry { return m.registry }

func (m *mockCoordinator) DeviceInfo(_ context.Context) device.Info {
	return device.DefaultInfo(testHost)
}

func (m *mockCoordinator) InvalidateDeviceInfo() {
	m.mu.Lock()
	m.invalidated++
	m.mu.Unlock()
}

func (m *mockCoordinator) LastRefresh() (coordinator.RefreshResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.haveLast
}

func (m *mockCoordinator) setLast(r coordinator.RefreshResult) {
	m.mu.Lock()
	m.last, m.haveLast = r, true
	m.mu.Unlock()
}

func (m *mockCoordinator) ProbeDevice(_ context.Context, id string) (controller.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "probe:"+id)
	return m.probe, m.probeErr
}

func (m *mockCoordinator) Refresh(_ context.Context) (coordinator.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	m.last = coordinator.RefreshResult{
		StartedAt: time.Now(),
		Duration:  5 * time.Millisecond,
		Err:       m.refreshErr,
		Stats:     m.registry.GetStats(),
	}
	m.haveLast = true
	return coordinator.Snapshot{}, m.refreshErr
}

func (m *mockCoordinator) SetDeviceState(_ context.Context, id string, on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "state:"+id)
	if !m.accept {
		return false
	}
	return m.registry.SetDeviceState(id, on) == nil
}

func (m *mockCoordinator) SetPowerLevel(_ context.Context, id string, level int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "powerlevel:"+id)
	if !m.accept {
		return false
	}
	return m.registry.SetDevicePowerLevel(id, level) == nil
}

func (m *mockCoordinator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockChecker implements HealthChecker.
type mockChecker struct {
	err error
}

func (c mockChecker) HealthCheck(context.Context) error { return c.err }

// mockHistory implements device.StateHistoryRepository.
type mockHistory struct {
	mu      sync.Mutex
	entries []device.StateHistoryEntry
	err     error
	limits  []int
}

func (h *mockHistory) RecordStateChange(_ context.Context, id string, state device.State, source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]device.StateHistoryEntry{{
		ID: int64(len(h.entries) + 1), DeviceID: id, State: state, Source: source, CreatedAt: time.Now().UTC(),
	}}, h.entries...)
	return nil
}

func (h *mockHistory) GetHistory(_ context.Context, id string, q device.HistoryQuery) ([]device.StateHistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limits = append(h.limits, q.Limit)
	if h.err != nil {
		return nil, h.err
	}
	out := []device.StateHistoryEntry{}
	for _, e := range h.entries {
		if e.DeviceID == id && e.CreatedAt.After(q.Since) && len(out) < q.Limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	filters []audit.Filter
	err     error
}

func (a *mockAudit) Record(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *e)
	return nil
}

func (a *mockAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters = append(a.filters, f)
	if a.err != nil {
		return nil, a.err
	}
	return &audit.ListResult{Entries: append([]audit.Entry{}, a.entries...), Total: len(a.entries), Limit: f.Limit, Offset: f.Offset}, nil
}

func (a *mockAudit) recorded() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer builds a server with one operator per role.
// Every operator uses testPassword.
func testServer(t *testing.T) (*Server, *mockCoordinator) {
	t.Helper()
	return testServerWith(t, func(*Deps) {})
}

func testServerWith(t *testing.T, mutate func(*Deps)) (*Server, *mockCoordinator) {
	t.Helper()

	hash := passwordHash(t)
	ops, err := auth.NewOperatorStore([]config.OperatorConfig{
		{Username: "admin", PasswordHash: hash, Role: "admin"},
		{Username: "grower", PasswordHash: hash, Role: "operator"},
		{Username: "guest", PasswordHash: hash, Role: "viewer"},
	})
	if err != nil {
		t.Fatalf("NewOperatorStore() error = %v", err)
	}

	coord := newMockCoordinator()
	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		WS:          config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:    config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15}},
		Logger:      testLogger(),
		Coordinator: coord,
		Operators:   ops,
		Version:     "test",
	}
	mutate(&deps)

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, coord
}

// tokenFor signs an access token for a role.
func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(&auth.Operator{Username: string(role) + "-user", Role: role}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return token
}

// do sends a request through the router. An empty token sends no
// Authorization header.
func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

var errControllerDown = errors.New("controller unreachable")
