package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/auth"
	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/logging"
)

// writeConfig writes a minimal config with MQTT and InfluxDB disabled and
// points MANNITO_CONFIG at it.
func writeConfig(t *testing.T, controllerHost string, controllerPort int) {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := fmt.Sprintf(`
controller:
  host: %q
  port: %d
  poll_interval: 60
  request_timeout: 2

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: %d

security:
  jwt:
    secret: "test-secret-that-is-at-least-32-characters"
`, controllerHost, controllerPort, filepath.Join(tmpDir, "mannito.db"), freePort(t))

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("MANNITO_CONFIG", configPath)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("port of %q: %v", rawURL, err)
	}
	return u.Hostname(), port
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MANNITO_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ControllerRejectsCredentials verifies a 401 at startup aborts.
func TestRun_ControllerRejectsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	writeConfig(t, host, port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, controller.ErrAuth) {
		t.Fatalf("run() error = %v, want ErrAuth", err)
	}
}

// TestRun_UnreachableControllerKeepsRunning verifies a connection error at
// startup is not fatal and run returns cleanly on cancellation.
func TestRun_UnreachableControllerKeepsRunning(t *testing.T) {
	writeConfig(t, "127.0.0.1", freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("MANNITO_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("MANNITO_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestNewControllerClient(t *testing.T) {
	tests := []struct {
		name       string
		apiVersion string
		wantSchema string
		wantErr    bool
	}{
		{"default", "", controller.SchemaVersionV2, false},
		{"v1", "v1", controller.SchemaVersionV1, false},
		{"unknown", "v9", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Controller: config.ControllerConfig{
				Host: "10.0.0.5", Port: 80, APIVersion: tt.apiVersion, RequestTimeout: 5,
			}}
			client, err := newControllerClient(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newControllerClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, controller.ErrUnknownSchema) {
					t.Errorf("error = %v, want ErrUnknownSchema", err)
				}
				return
			}
			if got := client.Schema().Version; got != tt.wantSchema {
				t.Errorf("schema = %q, want %q", got, tt.wantSchema)
			}
		})
	}
}

// fakeBulkFetcher implements bulkFetcher.
type fakeBulkFetcher struct {
	err   error
	calls int
}

func (f *fakeBulkFetcher) Host() string { return "10.0.0.5" }

func (f *fakeBulkFetcher) FetchBulkState(ctx context.Context) (*controller.BulkState, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("probe must carry a deadline")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &controller.BulkState{}, nil
}

func TestProbeController(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"reachable", nil, false},
		{"connection refused", fmt.Errorf("%w: dial tcp: connection refused", controller.ErrConnection), false},
		{"bad credentials", fmt.Errorf("%w: %w: status 401", controller.ErrConnection, controller.ErrAuth), true},
		{"malformed body", fmt.Errorf("%w: unexpected EOF", controller.ErrDecode), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBulkFetcher{err: tt.err}
			err := probeController(context.Background(), f, log)
			if (err != nil) != tt.wantErr {
				t.Errorf("probeController() error = %v, wantErr %v", err, tt.wantErr)
			}
			if f.calls != 1 {
				t.Errorf("calls = %d, want 1", f.calls)
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	if err := hashPassword(strings.NewReader("s3cret-grow-room\n"), &out); err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}

	hash := strings.TrimSpace(out.String())
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("hash = %q, want argon2id PHC string", hash)
	}
	ok, err := auth.VerifyPassword("s3cret-grow-room", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword() = %v, %v; want true", ok, err)
	}
}

func TestHashPassword_NoTrailingNewline(t *testing.T) {
	var out bytes.Buffer
	if err := hashPassword(strings.NewReader("no-newline"), &out); err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}
	ok, err := auth.VerifyPassword("no-newline", strings.TrimSpace(out.String()))
	if err != nil || !ok {
		t.Errorf("VerifyPassword() = %v, %v; want true", ok, err)
	}
}

func TestHashPassword_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := hashPassword(strings.NewReader("\n"), &out); err == nil {
		t.Error("hashPassword() should reject an empty password")
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
}
