package mqtt

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	fallbackInitialDelay = time.Second
	fallbackMaxDelay     = time.Minute

	maxQoS = 2
)

// Option customises a connection.
type Option func(*settings)

type settings struct {
	willTopic   string
	willPayload []byte
}

// WithWill registers a retained Last Will message. The broker publishes it at
// QoS 1 if the bridge disappears without a clean disconnect.
func WithWill(topic string, payload []byte) Option {
	return func(s *settings) {
		s.willTopic = topic
		s.willPayload = payload
	}
}

// buildClientOptions maps the configuration onto paho options. Sessions are
// clean, so subscriptions are replayed by the client after each reconnect.
func buildClientOptions(cfg config.MQTTConfig, s settings) *pahomqtt.ClientOptions {
	initial, maxDelay := reconnectBackoff(cfg.Reconnect)

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(initial).
		SetMaxReconnectInterval(maxDelay).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if s.willTopic != "" {
		opts.SetBinaryWill(s.willTopic, s.willPayload, 1, true)
	}
	return opts
}

// reconnectBackoff resolves the retry bounds. Unset values fall back to 1s
// and 1m, and the ceiling is never below the first delay.
func reconnectBackoff(rc config.MQTTReconnectConfig) (initial, maxDelay time.Duration) {
	initial = time.Duration(rc.InitialDelay) * time.Second
	if initial <= 0 {
		initial = fallbackInitialDelay
	}
	maxDelay = time.Duration(rc.MaxDelay) * time.Second
	if maxDelay <= 0 {
		maxDelay = fallbackMaxDelay
	}
	return initial, max(initial, maxDelay)
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}
