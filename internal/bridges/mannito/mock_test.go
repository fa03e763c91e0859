package mannito

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/mqtt"
)

const testHost = "10.0.0.5"

// mockMQTT implements MQTTClient, Subscriber and HealthPublisher.
type mockMQTT struct {
	mu           sync.Mutex
	connected    bool
	published    []publishedMessage
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	publishErr   error
	subscribeErr error
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockMQTT) setPublishErr(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

// deliver routes a message to the handler subscribed on filter.
func (m *mockMQTT) deliver(filter, topic string, payload []byte) error {
	m.mu.Lock()
	h, ok := m.handlers[filter]
	m.mu.Unlock()
	if !ok {
		return errors.New("no handler for " + filter)
	}
	return h(topic, payload)
}

func (m *mockMQTT) messages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedMessage, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockMQTT) messagesOn(topic string) []publishedMessage {
	var out []publishedMessage
	for _, msg := range m.messages() {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockMQTT) reset() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// mockGateway implements Gateway on top of a real registry.
type mockGateway struct {
	mu       sync.Mutex
	registry *device.Registry
	accept   bool
	calls    []string
}

func newMockGateway() *mockGateway {
	r := device.NewRegistry()
	fan := device.Device{
		ID: "FAN1", UniqueID: device.ScopedID(testHost, "FAN1"), Name: "Fan",
		Type: device.ParseDeviceType("fan"), Power: device.Supported(0, 255),
		Enabled: true, Initialized: true, Responding: true,
	}
	valve := device.Device{
		ID: "VALVE1", UniqueID: device.ScopedID(testHost, "VALVE1"), Name: "Valve",
		Type: device.ParseDeviceType("valve"), Power: device.Unsupported(),
		Enabled: true, Initialized: true, Responding: true,
	}
	co2 := device.Sensor{
		ID: "CO2", UniqueID: device.ScopedID(testHost, "CO2"), Name: "CO2",
		Type: device.ParseSensorType("co2"), Value: "415", Unit: "ppm",
		Valid: true, Enabled: true, Initialized: true, Responding: true,
	}
	slot := device.NewSlotParameter(testHost, "Default", 0, "AIR_TEMPERATURE", 21.5)
	slot.Available = true

	_ = r.UpsertDevice(fan)
	_ = r.UpsertDevice(valve)
	_ = r.UpsertSensor(co2)
	_ = r.UpsertSlotParameter(slot)

	return &mockGateway{registry: r, accept: true}
}

func (g *mockGateway) Host() string               { return testHost }
func (g *mockGateway) Registry() *device.Registry { return g.registry }

func (g *mockGateway) SetDeviceState(_ context.Context, id string, on bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "state:"+id)
	if !g.accept {
		return false
	}
	return g.registry.SetDeviceState(id, on) == nil
}

func (g *mockGateway) SetPowerLevel(_ context.Context, id string, level int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "powerlevel:"+id)
	if !g.accept {
		return false
	}
	return g.registry.SetDevicePowerLevel(id, level) == nil
}

func (g *mockGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// mockRefreshes implements RefreshSource.
type mockRefreshes struct {
	mu   sync.Mutex
	last coordinator.RefreshResult
	ok   bool
}

func (m *mockRefreshes) LastRefresh() (coordinator.RefreshResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.ok
}

func (m *mockRefreshes) set(r coordinator.RefreshResult) {
	m.mu.Lock()
	m.last, m.ok = r, true
	m.mu.Unlock()
}
