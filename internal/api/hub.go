package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/logging"
)

// Broadcast channels.
const (
	ChannelRefresh     = "refresh.completed"
	ChannelDeviceState = "device.state_changed"
	ChannelCommand     = "command.result"
)

// knownChannels are the channels a client may subscribe to.
var knownChannels = map[string]struct{}{
	ChannelRefresh:     {},
	ChannelDeviceState: {},
	ChannelCommand:     {},
}

// Hub fans coordinator events out to WebSocket clients.
//
// It implements coordinator.Listener, so every refresh and command result
// reaches subscribed clients without the API polling the registry.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "username", client.username, "clients", n)
}

// Unregister removes a client and closes its send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	h.logger.Debug("websocket client disconnected", "username", client.username, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client subscribed to channel,
// regardless of device filters.
func (h *Hub) Broadcast(channel string, payload any) {
	h.broadcast(channel, "", payload)
}

// broadcast sends an event about deviceID. Clients that subscribed with a
// device filter only receive events for devices in it.
func (h *Hub) broadcast(channel, deviceID string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.wants(channel, deviceID) {
			continue
		}
		if !client.trySend(data) {
			h.logger.Debug("websocket client too slow, event dropped",
				"username", client.username,
				"channel", channel,
			)
		}
	}
}

// OnRefresh relays a finished refresh cycle. Devices whose state changed
// are also sent individually on the device channel.
func (h *Hub) OnRefresh(result coordinator.RefreshResult) {
	payload := map[string]any{
		"success":     result.Err == nil,
		"started_at":  result.StartedAt.UTC().Format(time.RFC3339),
		"duration_ms": result.Duration.Milliseconds(),
		"stats":       result.Stats,
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	h.broadcast(ChannelRefresh, "", payload)

	for _, d := range result.Changed {
		h.broadcast(ChannelDeviceState, d.ID, newDeviceResponse(d))
	}
}

// OnCommand relays the outcome of a device command.
func (h *Hub) OnCommand(result coordinator.CommandResult) {
	payload := map[string]any{
		"device_id": result.DeviceID,
		"command":   result.Command,
		"success":   result.Success,
	}
	switch result.Command {
	case coordinator.CommandState:
		payload["on"] = result.On
	case coordinator.CommandPowerLevel:
		payload["level"] = result.Level
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	h.broadcast(ChannelCommand, result.DeviceID, payload)

	if result.Success && result.Device != nil {
		h.broadcast(ChannelDeviceState, result.DeviceID, newDeviceResponse(*result.Device))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.closeSend()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}
