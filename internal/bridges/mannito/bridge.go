package mannito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/mqtt"
)

// Default timeouts for bridge operations.
const (
	defaultCommandTimeout = 10 * time.Second
	defaultQoS            = 1
)

// MQTTClient is the subset of *mqtt.Client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Gateway is the coordinator surface the bridge drives.
// *coordinator.Coordinator implements it.
type Gateway interface {
	Host() string
	Registry() *device.Registry
	SetDeviceState(ctx context.Context, deviceID string, on bool) bool
	SetPowerLevel(ctx context.Context, deviceID string, level int) bool
}

// Logger defines the logging interface used by the bridge.
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

// BridgeOptions holds the dependencies of a Bridge.
type BridgeOptions struct {
	// Gateway executes commands and owns the registry (required).
	Gateway Gateway

	// MQTT is the broker connection (required).
	MQTT MQTTClient

	// QoS for state, ack and command subscriptions. Default: 1.
	QoS byte

	// CommandTimeout bounds one controller command. Default: 10s.
	CommandTimeout time.Duration

	// Logger for operator diagnostics (optional).
	Logger Logger
}

// Bridge mirrors the Entity Registry onto MQTT and turns MQTT commands into
// Command Gateway calls.
//
// It implements coordinator.Listener: every refresh republishes the retained
// state of entities whose payload changed, and every successful command
// republishes the affected device straight away.
type Bridge struct {
	gateway Gateway
	mqtt    MQTTClient
	topics  mqtt.Topics
	host    string
	qos     byte
	timeout time.Duration
	now     func() time.Time

	// stateCache holds the last published payload per topic, minus timestamp.
	stateCache   map[string][]byte
	stateCacheMu sync.Mutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	started   bool
	startMu   sync.Mutex
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to subscribe and publish.
//
// Parameters:
//   - opts: Dependencies; Gateway and MQTT are required
//
// Returns:
//   - *Bridge: Ready to start
//   - error: ErrInvalidOptions if a required dependency is missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", ErrInvalidOptions)
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: mqtt client is required", ErrInvalidOptions)
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidOptions, opts.QoS)
	}

	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &Bridge{
		gateway:    opts.Gateway,
		mqtt:       opts.MQTT,
		host:       opts.Gateway.Host(),
		qos:        qos,
		timeout:    timeout,
		now:        time.Now,
		stateCache: make(map[string][]byte),
		logger:     logger,
	}, nil
}

// Start subscribes to the command topics and publishes the state of every
// known entity.
//
// Parameters:
//   - ctx: Parent context; in-flight commands are cancelled when it ends
//
// Returns:
//   - error: ErrAlreadyStarted, or the subscription error
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	b.ctx, b.ctxCancel = context.WithCancel(ctx)

	topic := b.topics.AllCommands(b.host)
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		b.ctxCancel()
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.started = true

	b.publishAll()
	b.logInfo("mannito bridge started", "host", b.host, "command_topic", topic)
	return nil
}

// Stop unsubscribes from command topics and cancels in-flight commands.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.startMu.Lock()
	started := b.started
	b.startMu.Unlock()
	if !started {
		return
	}

	b.stopOnce.Do(func() {
		b.ctxCancel()
		if err := b.mqtt.Unsubscribe(b.topics.AllCommands(b.host)); err != nil {
			b.logWarn("failed to unsubscribe command topic", "error", err)
		}
		b.logInfo("mannito bridge stopped", "host", b.host)
	})
}

// Republish forgets what was published and publishes every entity again.
// Call it after the broker connection is re-established.
func (b *Bridge) Republish() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[string][]byte)
	b.stateCacheMu.Unlock()
	b.publishAll()
}

// OnRefresh publishes entities whose state changed during the cycle.
// A failed cycle leaves every entity unavailable, which is published too.
func (b *Bridge) OnRefresh(result coordinator.RefreshResult) {
	if result.Err != nil {
		b.logDebug("publishing unavailable state after failed refresh", "error", result.Err)
	}
	b.publishAll()
}

// OnCommand publishes the device state after a successful command so
// subscribers see the optimistic update before the next poll.
func (b *Bridge) OnCommand(result coordinator.CommandResult) {
	if !result.Success || result.Device == nil {
		return
	}
	b.publishState(b.topics.State(b.host, mqtt.KindDevice, result.Device.ID), NewDeviceState(*result.Device, b.now()))
}

// publishAll publishes every entity in the registry, skipping unchanged ones.
func (b *Bridge) publishAll() {
	reg := b.gateway.Registry()
	now := b.now()

	for _, d := range reg.ListDevices() {
		b.publishState(b.topics.State(b.host, mqtt.KindDevice, d.ID), NewDeviceState(d, now))
	}
	for _, s := range reg.ListSensors() {
		b.publishState(b.topics.State(b.host, mqtt.KindSensor, s.ID), NewSensorState(s, now))
	}
	for _, p := range reg.ListSlotParameters() {
		b.publishState(b.topics.State(b.host, mqtt.KindSlot, p.ID), NewSlotState(p, now))
	}
}

// publishState publishes msg retained unless the same state was already published.
func (b *Bridge) publishState(topic string, msg StateMessage) {
	fingerprint, err := stateFingerprint(msg)
	if err != nil {
		b.logError("failed to marshal state", err, "topic", topic)
		return
	}
	if b.stateUnchanged(topic, fingerprint) {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err, "topic", topic)
		return
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		b.forgetState(topic)
		b.logError("failed to publish state", err, "topic", topic)
	}
}

// stateFingerprint serialises msg without its timestamp.
func stateFingerprint(msg StateMessage) ([]byte, error) {
	msg.Timestamp = time.Time{}
	return json.Marshal(msg)
}

// stateUnchanged reports whether fingerprint matches the cached payload for
// topic, recording it when it does not.
func (b *Bridge) stateUnchanged(topic string, fingerprint []byte) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if bytes.Equal(b.stateCache[topic], fingerprint) {
		return true
	}
	b.stateCache[topic] = fingerprint
	return false
}

func (b *Bridge) forgetState(topic string) {
	b.stateCacheMu.Lock()
	delete(b.stateCache, topic)
	b.stateCacheMu.Unlock()
}

// handleCommand processes one message from mannito/command/{host}/device/+.
// Every command is answered with an ack on the matching ack topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	_, segment, ok := b.topics.ParseCommand(topic)
	if !ok {
		b.logWarn("ignoring message on unexpected topic", "topic", topic)
		return nil
	}

	cmd, parseErr := ParseCommandMessage(payload)
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if parseErr != nil {
		code := ErrCodeInvalidCommand
		if errors.Is(parseErr, ErrInvalidParameters) {
			code = ErrCodeInvalidParameters
		}
		b.publishAck(cmd, segment, AckRejected, &AckError{Code: code, Message: parseErr.Error()})
		return nil
	}

	dev, found := b.resolveDevice(segment)
	if !found {
		b.publishAck(cmd, segment, AckRejected, &AckError{
			Code:    ErrCodeUnknownDevice,
			Message: fmt.Sprintf("device %s not found", segment),
		})
		return nil
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", dev.ID,
		"command", cmd.Command,
		"source", cmd.Source)

	if ackErr := b.executeCommand(cmd, dev); ackErr != nil {
		status := AckFailed
		if ackErr.Code != ErrCodeControllerError {
			status = AckRejected
		}
		b.publishAck(cmd, dev.ID, status, ackErr)
		return nil
	}
	b.publishAck(cmd, dev.ID, AckAccepted, nil)
	return nil
}

// executeCommand validates cmd against the device and forwards it to the
// gateway. It returns nil when the controller accepted the command.
func (b *Bridge) executeCommand(cmd CommandMessage, dev *device.Device) *AckError {
	ctx, cancel := context.WithTimeout(b.commandContext(), b.timeout)
	defer cancel()

	var ok bool
	switch cmd.Command {
	case CommandOn, CommandOff:
		ok = b.gateway.SetDeviceState(ctx, dev.ID, cmd.Command == CommandOn)
	case CommandSetPowerLevel:
		level, err := cmd.Level()
		if err != nil {
			return &AckError{Code: ErrCodeInvalidParameters, Message: err.Error()}
		}
		if !dev.Power.IsSupported() {
			return &AckError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("device %s has no power level", dev.ID)}
		}
		if !dev.Power.InRange(level) {
			return &AckError{
				Code:    ErrCodeInvalidParameters,
				Message: fmt.Sprintf("level %d outside 0..%d", level, dev.Power.Max()),
			}
		}
		ok = b.gateway.SetPowerLevel(ctx, dev.ID, level)
	default:
		return &AckError{Code: ErrCodeInvalidCommand, Message: fmt.Sprintf("unknown command: %s", cmd.Command)}
	}

	if !ok {
		return &AckError{Code: ErrCodeControllerError, Message: "controller did not accept the command"}
	}
	return nil
}

// resolveDevice finds the device addressed by a topic segment. Ids that
// needed sanitising are matched on their sanitised form.
func (b *Bridge) resolveDevice(segment string) (*device.Device, bool) {
	reg := b.gateway.Registry()
	if dev, err := reg.GetDevice(segment); err == nil {
		return dev, true
	}
	for _, d := range reg.ListDevices() {
		if mqtt.Segment(d.ID) == segment {
			return &d, true
		}
	}
	return nil, false
}

func (b *Bridge) commandContext() context.Context {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(cmd CommandMessage, deviceID string, status AckStatus, ackErr *AckError) {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: b.now().UTC(),
		Host:      b.host,
		DeviceID:  deviceID,
		Status:    status,
		Error:     ackErr,
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := b.topics.Ack(b.host, deviceID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err, "topic", topic)
	}

	if ackErr != nil {
		b.logWarn("command not executed",
			"command_id", cmd.ID,
			"device_id", deviceID,
			"status", status,
			"code", ackErr.Code,
			"message", ackErr.Message)
	}
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) {
	b.getLogger().Debug(msg, args...)
}

func (b *Bridge) logInfo(msg string, args ...any) {
	b.getLogger().Info(msg, args...)
}

func (b *Bridge) logWarn(msg string, args ...any) {
	b.getLogger().Warn(msg, args...)
}

func (b *Bridge) logError(msg string, err error, args ...any) {
	b.getLogger().Error(msg, append([]any{"error", err}, args...)...)
}
