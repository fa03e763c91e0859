package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/audit"
	"github.com/nerrad567/mannito-bridge/internal/auth"
	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/logging"
)

const gracefulShutdownTimeout = 10 * time.Second

// Coordinator is the part of *coordinator.Coordinator the API needs.
type Coordinator interface {
	Host() string
	Registry() *device.Registry
	DeviceInfo(ctx context.Context) device.Info
	InvalidateDeviceInfo()
	LastRefresh() (coordinator.RefreshResult, bool)
	ProbeDevice(ctx context.Context, deviceID string) (controller.Payload, error)
	Refresh(ctx context.Context) (coordinator.Snapshot, error)
	SetDeviceState(ctx context.Context, deviceID string, on bool) bool
	SetPowerLevel(ctx context.Context, deviceID string, level int) bool
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB) that can report their own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Coordinator Coordinator
	Operators   *auth.OperatorStore

	// Refresher runs POST /refresh cycles, usually the poll scheduler so a
	// manual cycle restarts the interval. Nil falls back to Coordinator.
	Refresher coordinator.Refresher

	// History is optional; the history endpoint answers 503 without it.
	History device.StateHistoryRepository

	// Audit records operator actions; optional.
	Audit audit.Repository

	// Metrics serves the Prometheus exposition; nil answers 503.
	Metrics http.Handler

	// HealthChecks are reported by GET /health under their map key.
	HealthChecks map[string]HealthChecker

	Version string
}

// Server serves the /api/v1 REST API and the WebSocket feed.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	coordinator Coordinator
	operators   *auth.OperatorStore
	refresher   coordinator.Refresher
	history     device.StateHistoryRepository
	audit       audit.Repository
	metrics     http.Handler
	checks      map[string]HealthChecker
	version     string
	startedAt   time.Time
	server      *http.Server
	hub         *Hub
	tickets     *ticketStore
	listener    net.Listener
	cancel      context.CancelFunc
}

// New checks the required dependencies and builds an unstarted server. The
// hub exists from here on so it can be registered as a coordinator listener
// before the first refresh.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Coordinator == nil:
		return nil, errors.New("coordinator is required")
	case deps.Operators == nil:
		return nil, errors.New("operator store is required")
	}

	refresher := deps.Refresher
	if refresher == nil {
		refresher = deps.Coordinator
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		operators:   deps.Operators,
		refresher:   refresher,
		history:     deps.History,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		checks:      deps.HealthChecks,
		version:     deps.Version,
		startedAt:   time.Now(),
		hub:         NewHub(deps.WS, deps.Logger),
		tickets:     newTicketStore(),
	}, nil
}

// Hub returns the WebSocket hub. Register it with the coordinator to relay
// refresh and command events to connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. Binding happens
// before Start returns, so a busy port is reported to the caller. The hub and
// ticket sweeper stop when ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return errors.New("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	tlsOn := s.cfg.TLS.Enabled
	s.logger.Info("API server listening", "address", ln.Addr().String(), "tls", tlsOn)
	go func() {
		var serveErr error
		if tlsOn {
			serveErr = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			serveErr = s.server.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", serveErr)
		}
	}()
	return nil
}

// Addr is the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops background work and drains in-flight requests for up to 10s.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has bound the listener.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

// accessTokenTTL returns the configured token lifetime, defaulting when unset.
func (s *Server) accessTokenTTL() time.Duration {
	if s.secCfg.JWT.AccessTokenTTL <= 0 {
		return auth.DefaultAccessTokenTTL
	}
	return time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
}
