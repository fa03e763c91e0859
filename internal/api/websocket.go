package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mannito-bridge/internal/auth"
	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

// Frame types carried in WSMessage.Type.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsSendBufferSize = 256

	fallbackPingInterval   = 30 * time.Second
	fallbackPongTimeout    = 10 * time.Second
	fallbackMaxMessageSize = 8 << 10
)

var errPayloadRequired = errors.New("payload is required")

// WSMessage is the envelope the bridge sends to clients.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a frame received from a client. The payload is decoded
// once the type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
//
// DeviceIDs narrows device and command events to the listed devices; empty
// means every device. Refresh events are never filtered.
type WSSubscribePayload struct {
	Channels  []string `json:"channels"`
	DeviceIDs []string `json:"device_ids,omitempty"`
}

func decodeSubscribePayload(raw json.RawMessage) (WSSubscribePayload, error) {
	var sub WSSubscribePayload
	if len(raw) == 0 {
		return sub, errPayloadRequired
	}
	err := json.Unmarshal(raw, &sub)
	return sub, err
}

// wsTimings holds the keepalive settings resolved from config.
type wsTimings struct {
	pingEvery  time.Duration
	writeWait  time.Duration
	readWindow time.Duration
	maxMessage int64
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	t := wsTimings{
		pingEvery:  time.Duration(cfg.PingInterval) * time.Second,
		writeWait:  time.Duration(cfg.PongTimeout) * time.Second,
		maxMessage: int64(cfg.MaxMessageSize),
	}
	if t.pingEvery <= 0 {
		t.pingEvery = fallbackPingInterval
	}
	if t.writeWait <= 0 {
		t.writeWait = fallbackPongTimeout
	}
	if t.maxMessage <= 0 {
		t.maxMessage = fallbackMaxMessageSize
	}
	t.readWindow = t.pingEvery + t.writeWait
	return t
}

// subscription is one channel subscription. A nil device set matches all.
type subscription struct {
	devices map[string]struct{}
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]subscription
	closed        bool
	mu            sync.RWMutex

	username string
	role     auth.Role
}

// The ticket already proves the caller authenticated over CORS-checked HTTP.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection after consuming a ticket from
// POST /auth/ws-ticket. Browsers cannot set headers on the upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "username", entry.username, "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]subscription),
		username:      entry.username,
		role:          entry.role,
	}
	s.hub.Register(client)

	timings := newWSTimings(s.wsCfg)
	go client.writePump(timings)
	go client.readPump(timings)
}

func (c *WSClient) extendRead(window time.Duration) error {
	return c.conn.SetReadDeadline(time.Now().Add(window))
}

func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.maxMessage)
	if err := c.extendRead(t.readWindow); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error { return c.extendRead(t.readWindow) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "username", c.username, "error", err)
			}
			return
		}
		// Any frame counts as liveness; background tabs may skip pongs.
		if err := c.extendRead(t.readWindow); err != nil {
			return
		}
		c.handleMessage(message)
	}
}

func (c *WSClient) write(t wsTimings, messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.write(t, websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.write(t, websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(t, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(req)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(req)
	case WSTypePing:
		c.sendResponse(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func (c *WSClient) handleSubscribe(req wsRequest) {
	sub, err := decodeSubscribePayload(req.Payload)
	if err != nil {
		c.sendError(req.ID, "invalid subscribe payload: "+err.Error())
		return
	}

	var accepted, rejected []string
	for _, ch := range sub.Channels {
		if _, ok := knownChannels[ch]; ok {
			accepted = append(accepted, ch)
		} else {
			rejected = append(rejected, ch)
		}
	}
	if len(accepted) == 0 {
		c.sendError(req.ID, "no known channels to subscribe to")
		return
	}

	filter := subscription{}
	if len(sub.DeviceIDs) > 0 {
		filter.devices = make(map[string]struct{}, len(sub.DeviceIDs))
		for _, id := range sub.DeviceIDs {
			filter.devices[id] = struct{}{}
		}
	}

	c.mu.Lock()
	for _, ch := range accepted {
		c.subscriptions[ch] = filter
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"username", c.username,
		"role", c.role,
		"channels", accepted,
		"device_ids", sub.DeviceIDs,
	)

	resp := map[string]any{"subscribed": accepted}
	if len(rejected) > 0 {
		resp["rejected"] = rejected
	}
	c.sendResponse(req.ID, WSTypeResponse, resp)
}

func (c *WSClient) handleUnsubscribe(req wsRequest) {
	sub, err := decodeSubscribePayload(req.Payload)
	if err != nil {
		c.sendError(req.ID, "invalid unsubscribe payload: "+err.Error())
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.sendResponse(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
}

// wants reports whether an event on channel about deviceID should reach
// the client. An empty deviceID passes every device filter.
func (c *WSClient) wants(channel, deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subscriptions[channel]
	if !ok {
		return false
	}
	if deviceID == "" || sub.devices == nil {
		return true
	}
	_, ok = sub.devices[deviceID]
	return ok
}

// trySend queues data without blocking. It reports false when the client
// is gone or its buffer is full.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once; writePump then exits.
func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
