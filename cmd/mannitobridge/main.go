// Mannito Bridge - host-side integration for Mannito farming controllers
//
// This is the main entry point for the bridge. It keeps an in-memory model
// of one controller in sync by polling, and exposes it over:
//   - MQTT (retained entity state, commands with acks, health with LWT)
//   - an authenticated HTTP API with a WebSocket live feed
//   - InfluxDB telemetry and Prometheus metrics
//
// Usage:
//
//	mannitobridge                  run the bridge (config from MANNITO_CONFIG)
//	mannitobridge hash-password    read a password on stdin, print its argon2id hash
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/api"
	"github.com/nerrad567/mannito-bridge/internal/audit"
	"github.com/nerrad567/mannito-bridge/internal/auth"
	"github.com/nerrad567/mannito-bridge/internal/bridges/mannito"
	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/database"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/mannito-bridge/internal/telemetry"
	"github.com/nerrad567/mannito-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when MANNITO_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// startupProbeTimeout bounds the one-off controller check at startup.
	startupProbeTimeout = 15 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Mannito bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database: state history and cached controller metadata
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	history := device.NewSQLiteStateHistoryRepository(db.DB)
	infoStore := device.NewSQLiteInfoStore(db.DB)

	// Controller client
	ctrl, err := newControllerClient(cfg)
	if err != nil {
		return fmt.Errorf("creating controller client: %w", err)
	}
	ctrl.SetLogger(log.Component("controller"))

	if probeErr := probeController(ctx, ctrl, log); probeErr != nil {
		return probeErr
	}

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	// MQTT (optional): entity state, commands, health, external sensors
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, ctrl.Host())
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	coordOpts := coordinator.Options{
		Controller: ctrl,
		Registry:   registry,
		InfoStore:  infoStore,
		Logger:     log.Component("coordinator"),
	}

	if len(cfg.Controller.ExternalSensors) > 0 {
		if mqttClient == nil {
			log.Warn("external sensors configured but MQTT is disabled; they will not be forwarded",
				"sensors", len(cfg.Controller.ExternalSensors))
		} else {
			external := mannito.NewExternalSensors(mqttClient, byte(cfg.MQTT.QoS), cfg.Controller.ExternalSensors)
			external.SetLogger(log.Component("external_sensors"))
			if startErr := external.Start(); startErr != nil {
				return fmt.Errorf("subscribing to external sensors: %w", startErr)
			}
			defer external.Stop()
			coordOpts.ExternalSensors = external
		}
	}

	coord, err := coordinator.New(coordOpts)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry: InfluxDB points and local state history
	recorderOpts := telemetry.Options{
		Host:      ctrl.Host(),
		Entities:  registry,
		History:   history,
		Retention: cfg.HistoryRetention(),
		Logger:    log.Component("telemetry"),
	}
	if influxClient != nil {
		recorderOpts.Points = influxClient
	}
	recorder := telemetry.New(recorderOpts)
	recorder.Start(ctx)
	defer recorder.Stop()
	coord.AddListener(recorder)

	// Prometheus metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		collector := metrics.New(ctrl.Host(), registry)
		coord.AddListener(collector)
		metricsHandler = collector.Handler()
	}

	// MQTT bridge and health
	if mqttClient != nil {
		bridge, bridgeErr := mannito.NewBridge(mannito.BridgeOptions{
			Gateway: coord,
			MQTT:    mqttClient,
			QoS:     byte(cfg.MQTT.QoS),
			Logger:  log.Component("bridge"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
		coord.AddListener(bridge)

		health := mannito.NewHealthReporter(mannito.HealthReporterConfig{
			Host:      ctrl.Host(),
			Version:   version,
			Publisher: mqttClient,
			Refreshes: coord,
		})
		health.SetLogger(log.Component("health"))
		if pubErr := health.PublishStarting(); pubErr != nil {
			log.Warn("failed to publish starting health", "error", pubErr)
		}
		health.Start(ctx)
		defer health.Stop()

		// Retained state must survive a broker restart
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected, republishing state")
			bridge.Republish()
			if pubErr := health.PublishNow(); pubErr != nil {
				log.Warn("failed to publish health after reconnect", "error", pubErr)
			}
		})
	}

	// HTTP API
	operators, err := auth.NewOperatorStore(cfg.Security.Operators)
	if err != nil {
		return fmt.Errorf("loading operators: %w", err)
	}
	if operators.Len() == 0 {
		log.Warn("no API operators configured; logins will be rejected")
	}
	if weak := operators.WeakHashes(); len(weak) > 0 {
		log.Warn("operator password hashes use weaker argon2id parameters; regenerate with hash-password",
			"operators", weak)
	}

	checks := map[string]api.HealthChecker{"database": db}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	// Created now so manual refreshes share its goroutine; started last.
	scheduler := coordinator.NewScheduler(coord, cfg.PollInterval())
	scheduler.SetLogger(log.Component("scheduler"))

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log,
		Coordinator:  coord,
		Refresher:    scheduler,
		Operators:    operators,
		History:      history,
		Audit:        audit.NewSQLiteRepository(db.DB),
		Metrics:      metricsHandler,
		HealthChecks: checks,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	coord.AddListener(server.Hub())
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Polling starts last so every listener sees the first cycle
	scheduler.Start(ctx)
	defer scheduler.Stop()

	log.Info("initialisation complete",
		"controller", ctrl.Host(),
		"schema", ctrl.Schema().Version,
		"poll_interval", scheduler.Interval(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	// Deferred calls run in reverse: scheduler, API, bridge and health,
	// telemetry, InfluxDB, external sensors, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MANNITO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MANNITO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newControllerClient builds the controller REST client from config.
func newControllerClient(cfg *config.Config) (*controller.Client, error) {
	schema, err := controller.SchemaFor(cfg.Controller.APIVersion)
	if err != nil {
		return nil, err
	}
	return controller.New(controller.Config{
		Host:        cfg.Controller.Host,
		Port:        cfg.Controller.Port,
		Username:    cfg.Controller.Username,
		Password:    cfg.Controller.Password,
		Schema:      schema,
		CatalogPath: cfg.Controller.CatalogPath,
		Timeout:     cfg.RequestTimeout(),
	})
}

// bulkFetcher is the part of the controller client used by the startup probe.
type bulkFetcher interface {
	Host() string
	FetchBulkState(ctx context.Context) (*controller.BulkState, error)
}

// probeController checks the controller once before polling starts.
// Rejected credentials abort startup; an unreachable controller only logs a
// warning since polling keeps retrying.
func probeController(ctx context.Context, ctrl bulkFetcher, log *logging.Logger) error {
	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	if _, err := ctrl.FetchBulkState(probeCtx); err != nil {
		if errors.Is(err, controller.ErrAuth) {
			return fmt.Errorf("controller %s rejected the configured credentials: %w", ctrl.Host(), err)
		}
		log.Warn("controller not reachable at startup, polling will retry",
			"host", ctrl.Host(),
			"error", err,
		)
		return nil
	}
	log.Info("controller reachable", "host", ctrl.Host())
	return nil
}

// connectMQTT connects with a retained offline Last Will on the health topic.
func connectMQTT(cfg *config.Config, host string) (*mqtt.Client, error) {
	will, err := json.Marshal(mannito.NewLWTMessage(host))
	if err != nil {
		return nil, fmt.Errorf("encoding last will: %w", err)
	}
	return mqtt.Connect(cfg.MQTT, mqtt.WithWill(mqtt.Topics{}.Health(host), will))
}

// hashPassword reads one password line from r and writes its argon2id hash
// to w, ready for security.operators[].password_hash.
func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
