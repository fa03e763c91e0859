package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// Defaults for the REST client.
const (
	// DefaultPort is the controller's HTTP port.
	DefaultPort = 80

	// defaultTimeout bounds every request. The coordinator relies on it and
	// applies no timeout of its own.
	defaultTimeout = 10 * time.Second

	// maxBodySize caps how much of a response is read.
	maxBodySize = 4 << 20

	// Endpoint paths relative to the /api base.
	pathBulk   = "/device/all"
	pathDevice = "/device/"
	pathInfo   = "/info"
	pathSensor = "/sensor"
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the connection settings for one controller.
type Config struct {
	// Host is the controller address (IP or hostname, no scheme).
	Host string

	// Port defaults to 80.
	Port int

	// Username and Password enable HTTP basic auth on every request when
	// Username is non-empty.
	Username string
	Password string

	// Schema selects the wire field names. Zero value means SchemaV2.
	Schema Schema

	// CatalogPath overrides Schema.CatalogPath when set.
	CatalogPath string

	// Timeout bounds each request. Default: 10 seconds.
	Timeout time.Duration

	// HTTPClient replaces the default client (tests use httptest clients).
	HTTPClient *http.Client
}

// Client talks to the controller's REST API. It holds no entity state; the
// only thing it remembers is whether the last request reached the device.
//
// All methods are safe for concurrent use.
type Client struct {
	host        string
	baseURL     string
	username    string
	password    string
	schema      Schema
	catalogPath string
	http        *http.Client
	connected   atomic.Bool
	logger      Logger
}

// New creates a client for the controller described by cfg.
//
// Parameters:
//   - cfg: Connection settings; Host is required
//
// Returns:
//   - *Client: Ready to use (no request is made here)
//   - error: ErrInvalidConfig if Host is empty
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	schema := cfg.Schema
	if schema.Version == "" {
		schema = SchemaV2
	}
	catalogPath := schema.CatalogPath
	if cfg.CatalogPath != "" {
		catalogPath = cfg.CatalogPath
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	base := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/api",
	}

	return &Client{
		host:        cfg.Host,
		baseURL:     base.String(),
		username:    cfg.Username,
		password:    cfg.Password,
		schema:      schema,
		catalogPath: catalogPath,
		http:        httpClient,
		logger:      noopLogger{},
	}, nil
}

// NewWithBaseURL creates a client against an explicit base URL such as an
// httptest server ("http://127.0.0.1:port"). host is still used for ids.
func NewWithBaseURL(baseURL, host string, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = host
	}
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.baseURL = baseURL + "/api"
	return c, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Host returns the controller host used to scope entity ids.
func (c *Client) Host() string {
	return c.host
}

// Schema returns the active wire schema.
func (c *Client) Schema() Schema {
	return c.schema
}

// IsConnected reports whether the most recent request got an HTTP response.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// FetchBulkState retrieves the consolidated devices/sensors/slots snapshot.
func (c *Client) FetchBulkState(ctx context.Context) (*BulkState, error) {
	var bulk BulkState
	if err := c.do(ctx, http.MethodGet, pathBulk, nil, &bulk); err != nil {
		return nil, fmt.Errorf("fetching bulk state: %w", err)
	}
	bulk.schema = c.schema
	return &bulk, nil
}

// FetchComponentCatalog retrieves the device and sensor catalog used at discovery.
func (c *Client) FetchComponentCatalog(ctx context.Context) (*Catalog, error) {
	var catalog Catalog
	if err := c.do(ctx, http.MethodGet, c.catalogPath, nil, &catalog); err != nil {
		return nil, fmt.Errorf("fetching component catalog: %w", err)
	}
	return &catalog, nil
}

// FetchDeviceState retrieves the live state of one device.
func (c *Client) FetchDeviceState(ctx context.Context, deviceID string) (Payload, error) {
	var state Payload
	if err := c.do(ctx, http.MethodGet, pathDevice+url.PathEscape(deviceID), nil, &state); err != nil {
		return nil, fmt.Errorf("fetching state of %s: %w", deviceID, err)
	}
	if state == nil {
		state = Payload{}
	}
	return state, nil
}

// SetDeviceState switches a device on or off.
func (c *Client) SetDeviceState(ctx context.Context, deviceID string, on bool) error {
	if err := c.do(ctx, http.MethodPost, pathDevice+url.PathEscape(deviceID), c.schema.StateBody(on), nil); err != nil {
		return fmt.Errorf("setting state of %s: %w", deviceID, err)
	}
	return nil
}

// SetPowerLevel sets a device's output level.
func (c *Client) SetPowerLevel(ctx context.Context, deviceID string, level int) error {
	if err := c.do(ctx, http.MethodPost, pathDevice+url.PathEscape(deviceID), c.schema.PowerLevelBody(level), nil); err != nil {
		return fmt.Errorf("setting power level of %s: %w", deviceID, err)
	}
	return nil
}

// FetchDeviceInfo retrieves the controller's identity metadata.
func (c *Client) FetchDeviceInfo(ctx context.Context) (*InfoPayload, error) {
	var info InfoPayload
	if err := c.do(ctx, http.MethodGet, pathInfo, nil, &info); err != nil {
		return nil, fmt.Errorf("fetching device info: %w", err)
	}
	return &info, nil
}

// PushExternalSensors forwards host sensor readings to the controller.
func (c *Client) PushExternalSensors(ctx context.Context, readings map[string]ExternalReading) error {
	if len(readings) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, pathSensor, readings, nil); err != nil {
		return fmt.Errorf("pushing external sensors: %w", err)
	}
	return nil
}

// do performs one request. Any transport error or non-200 status is an
// ErrConnection; 401/403 additionally carry ErrAuth.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrConnection, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.connected.Store(false)
		return fmt.Errorf("%w: %s %s: %v", ErrConnection, method, path, err)
	}
	defer resp.Body.Close()
	c.connected.Store(true)

	c.logger.Debug("controller request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w: status %d", ErrConnection, ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s %s: status %d", ErrConnection, method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize)) //nolint:errcheck // drain for keep-alive
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrConnection, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return fmt.Errorf("%w: invalid JSON at offset %d", ErrDecode, syntaxErr.Offset)
		}
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
