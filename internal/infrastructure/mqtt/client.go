package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

// Logger is the logging surface the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. It runs on paho's delivery goroutine
// and should return quickly; a returned error is only logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client is the bridge's broker connection on top of paho.
//
// Subscriptions are remembered and replayed on every reconnect. Handler
// panics are recovered and logged. All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	settings settings

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker described by cfg and waits for the first
// connection. Options such as WithWill are applied before dialling.
//
// Returns:
//   - *Client: Connected client that reconnects on its own
//   - error: ErrConnectionFailed when the broker refuses or does not answer in time
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := newClient(cfg, opts...)

	popts := buildClientOptions(cfg, c.settings).
		SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	c.client = pahomqtt.NewClient(popts)

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{cfg: cfg, subscriptions: make(map[string]subscription)}
	for _, opt := range opts {
		opt(&c.settings)
	}
	return c
}

// connect performs the initial dial. paho calls the OnConnect hook on its
// own goroutine, so the flag is also set here for callers that publish
// immediately.
func (c *Client) connect() error {
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return err
	}
	c.connected.Store(true)
	return nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()

	c.hookMu.RLock()
	hook := c.onConnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.hookMu.RLock()
	hook, logger := c.onDisconnect, c.logger
	c.hookMu.RUnlock()
	if logger != nil {
		logger.Warn("MQTT connection lost", "broker", brokerURL(c.cfg.Broker), "error", err)
	}
	if hook != nil {
		hook(err)
	}
}

// restoreSubscriptions replays remembered filters. The bridge uses clean
// sessions, so the broker forgets them on every disconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// Close disconnects, giving in-flight messages a second to drain. Publish
// the graceful offline status before calling it.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.connected.Store(false)
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected requires both our flag and paho's view to agree.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a hook run after every (re)connect, once subscriptions
// have been replayed.
func (c *Client) SetOnConnect(hook func()) {
	c.hookMu.Lock()
	c.onConnect = hook
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a hook run when the connection drops.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = hook
	c.hookMu.Unlock()
}

// SetLogger sets the logger for lost connections and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) log() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

// wrapHandler adapts handler to paho, logging returned errors and panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("MQTT handler panicked", "topic", topic, "panic", r)
				}
			}
		}()
		if err := handler(topic, msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("MQTT handler failed", "topic", topic, "error", err)
			}
		}
	}
}
