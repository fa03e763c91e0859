package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minJWTSecretLength guards the API that switches valves and pumps.
const minJWTSecretLength = 32

// Config is the root of config.yaml.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ControllerConfig describes the Mannito Farming controller to poll.
// Intervals are whole seconds; HistoryRetention is hours, 0 keeping history
// forever.
type ControllerConfig struct {
	Host             string                 `yaml:"host"`
	Port             int                    `yaml:"port"`
	Username         string                 `yaml:"username"`
	Password         string                 `yaml:"password"`
	APIVersion       string                 `yaml:"api_version"`
	PollInterval     int                    `yaml:"poll_interval"`
	RequestTimeout   int                    `yaml:"request_timeout"`
	CatalogPath      string                 `yaml:"catalog_path,omitempty"`
	HistoryRetention int                    `yaml:"history_retention"`
	ExternalSensors  []ExternalSensorConfig `yaml:"external_sensors"`
}

// ExternalSensorConfig forwards readings from an MQTT topic to the
// controller as external sensor ID.
type ExternalSensorConfig struct {
	ID    string `yaml:"id"`
	Topic string `yaml:"topic"`
}

// DatabaseConfig locates the SQLite file. BusyTimeout is in seconds.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig configures the broker link used for entity publication and
// device commands.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig configures the HTTP API listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds net/http server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists what browsers may send. An empty origin list admits all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes live event connections. Intervals are seconds.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig enables telemetry export. FlushInterval is in seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type SecurityConfig struct {
	JWT       JWTConfig        `yaml:"jwt"`
	Operators []OperatorConfig `yaml:"operators"`
}

// JWTConfig signs API access tokens. AccessTokenTTL is in minutes.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// OperatorConfig is an API account. PasswordHash is an argon2id PHC string
// as printed by the hash-password command.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load builds the configuration in three layers: built-in defaults, the
// YAML file at path, then MANNITO_* environment variables (see envVars).
// Unknown YAML keys are errors so typos do not silently fall back to
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Port:             80,
			APIVersion:       "v2",
			PollInterval:     30,
			RequestTimeout:   10,
			HistoryRetention: 7 * 24,
		},
		Database: DatabaseConfig{Path: "./data/mannito.db", WALMode: true, BusyTimeout: 5},
		MQTT: MQTTConfig{
			Enabled:   true,
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "mannito-bridge"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		InfluxDB:  InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security:  SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 15}},
		Metrics:   MetricsConfig{Enabled: true},
	}
}

// envVar binds one environment variable to a config field.
type envVar struct {
	name string
	str  func(*Config) *string
	num  func(*Config) *int
}

// envVars are the recognised overrides, mostly credentials that should not
// live in config.yaml.
var envVars = []envVar{
	{name: "MANNITO_CONTROLLER_HOST", str: func(c *Config) *string { return &c.Controller.Host }},
	{name: "MANNITO_CONTROLLER_PORT", num: func(c *Config) *int { return &c.Controller.Port }},
	{name: "MANNITO_CONTROLLER_USERNAME", str: func(c *Config) *string { return &c.Controller.Username }},
	{name: "MANNITO_CONTROLLER_PASSWORD", str: func(c *Config) *string { return &c.Controller.Password }},
	{name: "MANNITO_CONTROLLER_API_VERSION", str: func(c *Config) *string { return &c.Controller.APIVersion }},
	{name: "MANNITO_DATABASE_PATH", str: func(c *Config) *string { return &c.Database.Path }},
	{name: "MANNITO_MQTT_HOST", str: func(c *Config) *string { return &c.MQTT.Broker.Host }},
	{name: "MANNITO_MQTT_USERNAME", str: func(c *Config) *string { return &c.MQTT.Auth.Username }},
	{name: "MANNITO_MQTT_PASSWORD", str: func(c *Config) *string { return &c.MQTT.Auth.Password }},
	{name: "MANNITO_API_HOST", str: func(c *Config) *string { return &c.API.Host }},
	{name: "MANNITO_API_PORT", num: func(c *Config) *int { return &c.API.Port }},
	{name: "MANNITO_INFLUXDB_TOKEN", str: func(c *Config) *string { return &c.InfluxDB.Token }},
	{name: "MANNITO_LOG_LEVEL", str: func(c *Config) *string { return &c.Logging.Level }},
	{name: "MANNITO_JWT_SECRET", str: func(c *Config) *string { return &c.Security.JWT.Secret }},
}

// applyEnvOverrides copies set, non-empty variables onto cfg. A numeric
// variable that does not parse is an error rather than being ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, e := range envVars {
		v, ok := os.LookupEnv(e.name)
		if !ok || v == "" {
			continue
		}
		if e.str != nil {
			*e.str(cfg) = v
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s=%q: not an integer", e.name, v)
		}
		*e.num(cfg) = n
	}
	return nil
}

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var p problems

	ctl := c.Controller
	p.check(ctl.Host != "", "controller.host is required (set MANNITO_CONTROLLER_HOST)")
	p.check(validPort(ctl.Port), "controller.port must be between 1 and 65535")
	switch strings.ToLower(ctl.APIVersion) {
	case "", "v1", "v2":
	default:
		p.add("controller.api_version must be v1 or v2, got %q", ctl.APIVersion)
	}
	p.check(ctl.PollInterval >= 1, "controller.poll_interval must be at least 1 second")
	p.check(ctl.RequestTimeout >= 1, "controller.request_timeout must be at least 1 second")
	p.check(ctl.HistoryRetention >= 0, "controller.history_retention cannot be negative")

	ids := make(map[string]struct{}, len(ctl.ExternalSensors))
	for i, es := range ctl.ExternalSensors {
		if es.ID == "" || es.Topic == "" {
			p.add("controller.external_sensors[%d] needs id and topic", i)
			continue
		}
		if _, dup := ids[es.ID]; dup {
			p.add("controller.external_sensors[%d]: duplicate id %q", i, es.ID)
		}
		ids[es.ID] = struct{}{}
	}
	p.check(len(ctl.ExternalSensors) == 0 || c.MQTT.Enabled, "controller.external_sensors requires mqtt.enabled")

	p.check(c.Database.Path != "", "database.path is required")
	p.check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	p.check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb.enabled")
	p.check(validPort(c.API.Port), "api.port must be between 1 and 65535")
	p.check(!c.API.TLS.Enabled || (c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != ""),
		"api.tls needs cert_file and key_file when enabled")

	switch secret := c.Security.JWT.Secret; {
	case secret == "":
		p.add("security.jwt.secret is required (set MANNITO_JWT_SECRET)")
	case len(secret) < minJWTSecretLength:
		p.add("security.jwt.secret must be at least %d characters", minJWTSecretLength)
	}
	for i, op := range c.Security.Operators {
		p.check(op.Username != "" && op.PasswordHash != "",
			fmt.Sprintf("security.operators[%d] needs username and password_hash", i))
	}
	return p.err()
}

type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) check(ok bool, msg string) {
	if !ok {
		*p = append(*p, msg)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(p, "; "))
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// PollInterval is the time between refresh cycles.
func (c *Config) PollInterval() time.Duration { return seconds(c.Controller.PollInterval) }

// RequestTimeout bounds each controller request.
func (c *Config) RequestTimeout() time.Duration { return seconds(c.Controller.RequestTimeout) }

// HistoryRetention is how long device state history is kept; 0 means forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Controller.HistoryRetention) * time.Hour
}

// AccessTokenTTL is the lifetime of API access tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

func (a APIConfig) ReadTimeout() time.Duration  { return seconds(a.Timeouts.Read) }
func (a APIConfig) WriteTimeout() time.Duration { return seconds(a.Timeouts.Write) }
func (a APIConfig) IdleTimeout() time.Duration  { return seconds(a.Timeouts.Idle) }
