package mannito

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/controller"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/mqtt"
)

// Subscriber is the subset of *mqtt.Client used to collect host sensors.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// ExternalSensors collects host sensor readings from MQTT and hands the
// latest ones to the coordinator, which forwards them to the controller at
// the start of each refresh. It implements coordinator.ExternalSensorSource.
//
// A payload is either a bare value ("21.5") or a JSON object
// {"state": ..., "attributes": {...}}.
type ExternalSensors struct {
	sub     Subscriber
	qos     byte
	byTopic map[string][]string

	mu       sync.RWMutex
	readings map[string]controller.ExternalReading
	received map[string]time.Time

	logger Logger
}

// NewExternalSensors creates a collector for the configured sensors.
// Several sensors may share a topic.
func NewExternalSensors(sub Subscriber, qos byte, sensors []config.ExternalSensorConfig) *ExternalSensors {
	byTopic := make(map[string][]string)
	for _, s := range sensors {
		byTopic[s.Topic] = append(byTopic[s.Topic], s.ID)
	}
	return &ExternalSensors{
		sub:      sub,
		qos:      qos,
		byTopic:  byTopic,
		readings: make(map[string]controller.ExternalReading),
		received: make(map[string]time.Time),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the collector.
func (e *ExternalSensors) SetLogger(logger Logger) {
	e.logger = logger
}

// Start subscribes to every configured topic.
//
// Returns:
//   - error: The first subscription failure; topics already subscribed stay subscribed
func (e *ExternalSensors) Start() error {
	for topic := range e.byTopic {
		if err := e.sub.Subscribe(topic, e.qos, e.handleReading); err != nil {
			return fmt.Errorf("subscribing to external sensor topic %s: %w", topic, err)
		}
	}
	e.logger.Info("external sensors subscribed", "topics", len(e.byTopic))
	return nil
}

// Stop unsubscribes from every configured topic.
func (e *ExternalSensors) Stop() {
	for topic := range e.byTopic {
		if err := e.sub.Unsubscribe(topic); err != nil {
			e.logger.Warn("failed to unsubscribe external sensor topic", "topic", topic, "error", err)
		}
	}
}

// ExternalReadings returns a copy of the latest reading per sensor id.
// Sensors that never reported are absent.
func (e *ExternalSensors) ExternalReadings() map[string]controller.ExternalReading {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]controller.ExternalReading, len(e.readings))
	for id, r := range e.readings {
		out[id] = r
	}
	return out
}

// LastReceived returns when a reading for id last arrived.
func (e *ExternalSensors) LastReceived(id string) (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.received[id]
	return t, ok
}

func (e *ExternalSensors) handleReading(topic string, payload []byte) error {
	ids, ok := e.byTopic[topic]
	if !ok {
		return nil
	}

	reading, err := ParseExternalReading(payload)
	if err != nil {
		e.logger.Warn("ignoring external sensor payload", "topic", topic, "error", err)
		return err
	}

	now := time.Now()
	e.mu.Lock()
	for _, id := range ids {
		e.readings[id] = reading
		e.received[id] = now
	}
	e.mu.Unlock()

	e.logger.Debug("external sensor reading", "topic", topic, "state", reading.State)
	return nil
}

// ParseExternalReading decodes a host sensor payload.
//
// Parameters:
//   - payload: A bare value or a JSON object with "state" and optional "attributes"
//
// Returns:
//   - controller.ExternalReading: State as text plus attributes
//   - error: ErrInvalidReading for empty payloads or malformed JSON objects
func ParseExternalReading(payload []byte) (controller.ExternalReading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return controller.ExternalReading{}, fmt.Errorf("%w: empty payload", ErrInvalidReading)
	}

	if trimmed[0] != '{' {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return controller.ExternalReading{State: stateText(v)}, nil
		}
		return controller.ExternalReading{State: string(trimmed)}, nil
	}

	var obj struct {
		State      any            `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return controller.ExternalReading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	return controller.ExternalReading{State: stateText(obj.State), Attributes: obj.Attributes}, nil
}

// stateText renders a decoded JSON scalar as the controller expects it.
func stateText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
