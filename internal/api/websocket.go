package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/logging"
)

// Message types on the live event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll matches every relay channel.
	WSChannelAll = "*"

	wsSendBufferSize = 256
)

// Hub defaults when the config leaves a value at zero.
const (
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
)

// WSMessage is the envelope of every frame exchanged with a dashboard.
// Events carry the relay channel name in EventType.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the relay channels a subscribe or unsubscribe
// request applies to, for example "feedback", "z21.status" or "journey.state".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is the inbound form of WSMessage with the payload left raw.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans relay events out to connected dashboards. It implements the
// relay's Broadcaster.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one dashboard connection and its channel subscriptions.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// pumpTimings are the connection deadlines derived from the hub config.
type pumpTimings struct {
	readWait  time.Duration
	pingEvery time.Duration
	writeWait time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware already filtered the origin.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an event hub. Zero or negative config values fall back
// to the package defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func (h *Hub) timings() pumpTimings {
	ping := time.Duration(h.cfg.PingInterval) * time.Second
	pong := time.Duration(h.cfg.PongTimeout) * time.Second
	return pumpTimings{readWait: ping + pong, pingEvery: ping, writeWait: pong}
}

// Run blocks until ctx is cancelled, then disconnects every dashboard.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	detached := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range detached {
		c.shutdown()
	}
	if len(detached) > 0 {
		h.logger.Debug("event hub stopped", "disconnected", len(detached))
	}
}

// Register starts delivering events to client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("dashboard connected", "clients", n)
}

// Unregister stops delivery to client. Safe to call more than once; only
// the call that removes the client closes its send queue.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	close(client.send)
	h.logger.Debug("dashboard disconnected", "clients", n)
}

// Broadcast publishes payload on channel to every client subscribed to it
// or to WSChannelAll. Slow clients drop events instead of blocking the relay.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: timestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding event failed", "channel", channel, "error", err)
		return
	}

	for _, c := range h.snapshot() {
		if c.isSubscribed(channel) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// snapshot copies the client set so per-client locks are never taken
// while the hub lock is held.
func (h *Hub) snapshot() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// handleWebSocket upgrades the request to the live event stream. A new
// dashboard receives nothing until it subscribes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("event stream upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)

	t := s.hub.timings()
	go client.writeLoop(t)
	go client.readLoop(t, int64(s.hub.cfg.MaxMessageSize))
}

func (c *WSClient) shutdown() {
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *WSClient) readLoop(t pumpTimings, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }
	c.conn.SetReadLimit(limit)
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("event stream read failed", "error", err)
			}
			return
		}
		// Application pings count as liveness too.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handleMessage(frame)
	}
}

func (c *WSClient) writeLoop(t pumpTimings) {
	ticker := time.NewTicker(t.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)) //nolint:errcheck // write reports the failure
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// handleMessage answers one request frame from a dashboard.
func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &sub); err != nil {
				c.reply(req.ID, WSTypeError, errorBody("invalid "+req.Type+" payload"))
				return
			}
		}
		active := c.updateSubscriptions(sub.Channels, req.Type == WSTypeSubscribe)
		c.reply(req.ID, WSTypeResponse, map[string]any{
			req.Type + "d": sub.Channels,
			"channels":     active,
		})
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorBody("unknown message type: "+req.Type))
	}
}

// updateSubscriptions adds or removes channels and returns the resulting
// subscription set, sorted. Blank names are ignored.
func (c *WSClient) updateSubscriptions(channels []string, add bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}

	active := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		active = append(active, ch)
	}
	sort.Strings(active)
	return active
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, all := c.subscriptions[WSChannelAll]
	_, one := c.subscriptions[channel]
	return all || one
}

// trySend queues data without blocking. Events for a full queue are
// dropped; a queue closed by a concurrent Unregister is tolerated.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		_ = recover()
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: timestamp(),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
