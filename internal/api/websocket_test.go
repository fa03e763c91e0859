package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]subscription, len(channels))
	for _, ch := range channels {
		subs[ch] = subscription{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

// receive waits for the next message on the client.
func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return wsMsg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return WSMessage{}
}

func expectSilence(t *testing.T, client *WSClient) {
	t.Helper()
	select {
	case msg := <-client.send:
		t.Errorf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelDeviceState)

	hub.Broadcast(ChannelDeviceState, map[string]any{"device_id": "FAN1", "state": true})

	msg := receive(t, client)
	if msg.Type != WSTypeEvent {
		t.Errorf("type = %q, want %q", msg.Type, WSTypeEvent)
	}
	if msg.EventType != ChannelDeviceState {
		t.Errorf("event_type = %q, want %q", msg.EventType, ChannelDeviceState)
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelCommand)

	hub.Broadcast(ChannelDeviceState, map[string]any{"device_id": "FAN1"})

	expectSilence(t, client)
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := testClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// A second unregister must not close the channel twice.
	hub.Unregister(client)
}

func TestHub_OnRefresh(t *testing.T) {
	hub := testHub(t)
	refreshes := testClient(hub, ChannelRefresh)
	states := testClient(hub, ChannelDeviceState)

	fan := device.Device{ID: "FAN1", Type: device.ParseDeviceType("fan"), State: true}
	hub.OnRefresh(coordinator.RefreshResult{
		StartedAt: time.Now(),
		Duration:  12 * time.Millisecond,
		Changed:   []device.Device{fan},
		Stats:     device.Stats{Devices: 1, AvailableDevices: 1},
	})

	msg := receive(t, refreshes)
	payload, _ := msg.Payload.(map[string]any)
	if payload["success"] != true {
		t.Errorf("payload = %v, want success", payload)
	}
	if payload["duration_ms"] != float64(12) {
		t.Errorf("duration_ms = %v, want 12", payload["duration_ms"])
	}

	msg = receive(t, states)
	dev, _ := msg.Payload.(map[string]any)
	if dev["device_id"] != "FAN1" || dev["state"] != true {
		t.Errorf("device payload = %v", dev)
	}
}

func TestHub_OnRefreshFailure(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelRefresh)

	hub.OnRefresh(coordinator.RefreshResult{StartedAt: time.Now(), Err: coordinator.ErrUpdateFailed})

	payload, _ := receive(t, client).Payload.(map[string]any)
	if payload["success"] != false {
		t.Errorf("success = %v, want false", payload["success"])
	}
	if payload["error"] == nil {
		t.Error("error should be reported")
	}
}

func TestHub_OnCommand(t *testing.T) {
	tests := []struct {
		name        string
		result      coordinator.CommandResult
		wantField   string
		wantValue   any
		wantDevice  bool
		wantSuccess bool
	}{
		{
			name: "state accepted",
			result: coordinator.CommandResult{
				DeviceID: "FAN1", Command: coordinator.CommandState, On: true, Success: true,
				Device: &device.Device{ID: "FAN1", State: true},
			},
			wantField: "on", wantValue: true, wantDevice: true, wantSuccess: true,
		},
		{
			name: "powerlevel accepted",
			result: coordinator.CommandResult{
				DeviceID: "FAN1", Command: coordinator.CommandPowerLevel, Level: 90, Success: true,
				Device: &device.Device{ID: "FAN1", Power: device.Supported(90, 255)},
			},
			wantField: "level", wantValue: float64(90), wantDevice: true, wantSuccess: true,
		},
		{
			name: "rejected",
			result: coordinator.CommandResult{
				DeviceID: "FAN1", Command: coordinator.CommandState, On: false,
				Err: errors.New("controller returned 500"),
			},
			wantField: "error", wantValue: "controller returned 500",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := testHub(t)
			commands := testClient(hub, ChannelCommand)
			states := testClient(hub, ChannelDeviceState)

			hub.OnCommand(tt.result)

			payload, _ := receive(t, commands).Payload.(map[string]any)
			if payload["success"] != tt.wantSuccess {
				t.Errorf("success = %v, want %v", payload["success"], tt.wantSuccess)
			}
			if payload[tt.wantField] != tt.wantValue {
				t.Errorf("%s = %v, want %v", tt.wantField, payload[tt.wantField], tt.wantValue)
			}

			if tt.wantDevice {
				receive(t, states)
			} else {
				expectSilence(t, states)
			}
		})
	}
}

func TestWSClient_HandleMessage(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType string
	}{
		{"ping", `{"type":"ping","id":"1"}`, WSTypePong},
		{"subscribe", `{"type":"subscribe","id":"2","payload":{"channels":["refresh.completed"]}}`, WSTypeResponse},
		{"unsubscribe", `{"type":"unsubscribe","id":"3","payload":{"channels":["refresh.completed"]}}`, WSTypeResponse},
		{"unknown channel only", `{"type":"subscribe","id":"4","payload":{"channels":["scene.activated"]}}`, WSTypeError},
		{"bad payload", `{"type":"subscribe","id":"5","payload":{"channels":"refresh.completed"}}`, WSTypeError},
		{"missing payload", `{"type":"unsubscribe","id":"6"}`, WSTypeError},
		{"unknown type", `{"type":"dance"}`, WSTypeError},
		{"invalid json", `{`, WSTypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := testHub(t)
			client := testClient(hub)

			client.handleMessage([]byte(tt.message))

			if got := receive(t, client).Type; got != tt.wantType {
				t.Errorf("type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestWSClient_SubscribeThenReceive(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub)

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["command.result"]}}`))
	receive(t, client)

	hub.Broadcast(ChannelCommand, map[string]any{"device_id": "FAN1"})
	if got := receive(t, client).EventType; got != ChannelCommand {
		t.Errorf("event_type = %q, want %q", got, ChannelCommand)
	}

	client.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["command.result"]}}`))
	receive(t, client)

	hub.Broadcast(ChannelCommand, map[string]any{"device_id": "FAN1"})
	expectSilence(t, client)
}

func TestWSClient_SubscribeRejectsUnknownChannels(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub)

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["command.result","scene.activated"]}}`))

	payload, _ := receive(t, client).Payload.(map[string]any)
	subscribed, _ := payload["subscribed"].([]any)
	rejected, _ := payload["rejected"].([]any)
	if len(subscribed) != 1 || subscribed[0] != ChannelCommand {
		t.Errorf("subscribed = %v, want [%s]", payload["subscribed"], ChannelCommand)
	}
	if len(rejected) != 1 || rejected[0] != "scene.activated" {
		t.Errorf("rejected = %v, want [scene.activated]", payload["rejected"])
	}
}

func TestWSClient_DeviceFilter(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub)

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["device.state_changed","refresh.completed"],"device_ids":["FAN1"]}}`))
	receive(t, client)

	hub.OnRefresh(coordinator.RefreshResult{
		StartedAt: time.Now(),
		Changed: []device.Device{
			{ID: "VALVE1", State: true},
			{ID: "FAN1", State: true},
		},
	})

	// Refresh events ignore the device filter.
	if got := receive(t, client).EventType; got != ChannelRefresh {
		t.Fatalf("event_type = %q, want %q", got, ChannelRefresh)
	}
	dev, _ := receive(t, client).Payload.(map[string]any)
	if dev["device_id"] != "FAN1" {
		t.Errorf("device_id = %v, want FAN1", dev["device_id"])
	}
	expectSilence(t, client)
}

func TestWSClient_TrySendAfterClose(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, ChannelRefresh)

	hub.Unregister(client)
	if client.trySend([]byte(`{}`)) {
		t.Error("trySend() after close = true, want false")
	}

	// Broadcasting to a closed client must not panic.
	hub.Broadcast(ChannelRefresh, map[string]any{"success": true})
}

func TestWSClient_TrySendFullBuffer(t *testing.T) {
	client := &WSClient{send: make(chan []byte, 1), subscriptions: map[string]subscription{}}

	if !client.trySend([]byte(`1`)) {
		t.Fatal("first trySend() = false, want true")
	}
	if client.trySend([]byte(`2`)) {
		t.Error("trySend() on full buffer = true, want false")
	}
}

func TestNewWSTimings(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.WebSocketConfig
		want wsTimings
	}{
		{
			name: "configured",
			cfg:  config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 20, PongTimeout: 5},
			want: wsTimings{pingEvery: 20 * time.Second, writeWait: 5 * time.Second, readWindow: 25 * time.Second, maxMessage: 4096},
		},
		{
			name: "zero falls back",
			cfg:  config.WebSocketConfig{},
			want: wsTimings{pingEvery: 30 * time.Second, writeWait: 10 * time.Second, readWindow: 40 * time.Second, maxMessage: 8192},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newWSTimings(tt.cfg); got != tt.want {
				t.Errorf("newWSTimings() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeSubscribePayload_Empty(t *testing.T) {
	if _, err := decodeSubscribePayload(nil); !errors.Is(err, errPayloadRequired) {
		t.Errorf("err = %v, want errPayloadRequired", err)
	}
}
