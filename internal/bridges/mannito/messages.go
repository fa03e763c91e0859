package mannito

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/device"
)

// Command names accepted on mannito/command/{host}/device/{id}.
const (
	CommandOn            = "on"
	CommandOff           = "off"
	CommandSetPowerLevel = "set_powerlevel"
)

// CommandMessage is an inbound device command.
// Topic: mannito/command/{host}/device/{id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. Generated when empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued.
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Command is one of "on", "off", "set_powerlevel".
	Command string `json:"command"`

	// Parameters holds command values, e.g. {"level": 128} for set_powerlevel.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated (optional).
	Source string `json:"source,omitempty"`
}

// ParseCommandMessage decodes and validates a command payload.
//
// Parameters:
//   - payload: JSON command body
//
// Returns:
//   - CommandMessage: The decoded command
//   - error: ErrInvalidCommand or ErrInvalidParameters on bad input
func ParseCommandMessage(payload []byte) (CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	switch msg.Command {
	case CommandOn, CommandOff:
	case CommandSetPowerLevel:
		if _, err := msg.Level(); err != nil {
			return msg, err
		}
	case "":
		return msg, fmt.Errorf("%w: command is required", ErrInvalidCommand)
	default:
		return msg, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, msg.Command)
	}
	return msg, nil
}

// Level returns parameters.level as an integer.
func (m CommandMessage) Level() (int, error) {
	raw, ok := m.Parameters["level"]
	if !ok {
		return 0, fmt.Errorf("%w: level is required", ErrInvalidParameters)
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: level must be an integer", ErrInvalidParameters)
	}
	return int(f), nil
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the controller accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckRejected indicates the command was refused locally (bad payload,
	// unsupported device or level out of range). No request was made.
	AckRejected AckStatus = "rejected"

	// AckFailed indicates the controller could not be reached or refused the command.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeControllerError   = "CONTROLLER_ERROR"
)

// AckMessage acknowledges a command.
// Topic: mannito/ack/{host}/device/{id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for rejected or failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is the retained state of one entity.
// Topic: mannito/state/{host}/{kind}/{id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	ID        string         `json:"id"`
	UniqueID  string         `json:"unique_id"`
	Kind      string         `json:"kind"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Available bool           `json:"available"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewDeviceState builds the state message of a device. The power level is
// only included while it can be trusted.
func NewDeviceState(d device.Device, now time.Time) StateMessage {
	state := map[string]any{"on": d.State}
	if level, ok := d.CurrentPowerLevel(); ok {
		state["powerlevel"] = level
		state["max_powerlevel"] = d.Power.Max()
	}
	return StateMessage{
		ID:        d.ID,
		UniqueID:  d.UniqueID,
		Kind:      "device",
		Type:      d.Type.String(),
		Name:      d.Name,
		Available: d.Available,
		State:     state,
		Timestamp: now.UTC(),
	}
}

// NewSensorState builds the state message of a sensor. Measurements carry
// their numeric value; readings with no usable value publish null.
func NewSensorState(s device.Sensor, now time.Time) StateMessage {
	value, ok := device.NativeValue(&s)
	if !ok {
		value = nil
	}
	state := map[string]any{"value": value}
	if s.Unit != "" {
		state["unit"] = s.Unit
	}
	return StateMessage{
		ID:        s.ID,
		UniqueID:  s.UniqueID,
		Kind:      "sensor",
		Type:      s.Type.String(),
		Name:      s.Name,
		Available: s.Available,
		State:     state,
		Timestamp: now.UTC(),
	}
}

// NewSlotState builds the state message of a slot parameter.
func NewSlotState(p device.SlotParameter, now time.Time) StateMessage {
	return StateMessage{
		ID:        p.ID,
		UniqueID:  p.UniqueID,
		Kind:      "slot",
		Type:      p.Parameter.String(),
		Name:      p.Name,
		Available: p.Available,
		State: map[string]any{
			"value":      p.Value,
			"slot_name":  p.SlotName,
			"slot_index": p.SlotIndex,
		},
		Timestamp: now.UTC(),
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates MQTT is connected and the last refresh succeeded.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is published by the broker as the Last Will.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: mannito/health/{host}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Host          string       `json:"host"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Controller describes the most recent refresh cycle.
	Controller *ControllerStatus `json:"controller,omitempty"`

	// Entities are the registry counts after the most recent cycle.
	Entities *device.Stats `json:"entities,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// ControllerStatus summarises the most recent refresh cycle.
type ControllerStatus struct {
	Reachable       bool      `json:"reachable"`
	LastRefresh     time.Time `json:"last_refresh"`
	DurationSeconds float64   `json:"duration_seconds"`
	LastError       string    `json:"last_error,omitempty"`
}

// NewLWTMessage creates the Last Will message the broker publishes if the
// bridge disconnects unexpectedly.
func NewLWTMessage(host string) HealthMessage {
	return HealthMessage{
		Host:      host,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
