package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
)

func newMockClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func receive(t *testing.T, c *WSClient) (WSMessage, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg, true
	case <-time.After(50 * time.Millisecond):
		return WSMessage{}, false
	}
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	if hub.cfg.MaxMessageSize != defaultMaxMessageSize ||
		hub.cfg.PingInterval != defaultPingInterval ||
		hub.cfg.PongTimeout != defaultPongTimeout {
		t.Errorf("cfg = %+v", hub.cfg)
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	feedback := newMockClient(hub, "feedback")
	status := newMockClient(hub, "z21.status")
	all := newMockClient(hub, WSChannelAll)

	if got := hub.ClientCount(); got != 3 {
		t.Fatalf("ClientCount = %d, want 3", got)
	}

	hub.Broadcast("feedback", map[string]any{"port": 5})

	msg, ok := receive(t, feedback)
	if !ok {
		t.Fatal("subscribed client received nothing")
	}
	if msg.Type != WSTypeEvent || msg.EventType != "feedback" || msg.Timestamp == "" {
		t.Errorf("msg = %+v", msg)
	}
	if _, ok := receive(t, all); !ok {
		t.Error("wildcard client received nothing")
	}
	if _, ok := receive(t, status); ok {
		t.Error("unsubscribed client received the event")
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newMockClient(hub, "feedback")

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}

	// Broadcasting after unregister must not panic on the closed channel.
	hub.Broadcast("feedback", nil)
	c.trySend([]byte("late"))
}

func TestHub_RunClosesClientsOnCancel(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newMockClient(hub, "feedback")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, open := <-c.send; open {
		t.Error("client send channel still open")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestWSClient_HandleMessage(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newMockClient(hub)

	c.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["journey.state"]}}`))
	msg, ok := receive(t, c)
	if !ok || msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Fatalf("subscribe response = %+v (received %t)", msg, ok)
	}
	if !c.isSubscribed("journey.state") || c.isSubscribed("feedback") {
		t.Error("subscription set wrong")
	}

	c.handleMessage([]byte(`{"type":"ping","id":"2"}`))
	if msg, _ := receive(t, c); msg.Type != WSTypePong || msg.ID != "2" {
		t.Errorf("ping response = %+v", msg)
	}

	c.handleMessage([]byte(`{"type":"unsubscribe","id":"3","payload":{"channels":["journey.state"]}}`))
	receive(t, c)
	if c.isSubscribed("journey.state") {
		t.Error("still subscribed after unsubscribe")
	}

	c.handleMessage([]byte(`{"type":"bogus","id":"4"}`))
	if msg, _ := receive(t, c); msg.Type != WSTypeError {
		t.Errorf("unknown type response = %+v", msg)
	}

	c.handleMessage([]byte(`not json`))
	if msg, _ := receive(t, c); msg.Type != WSTypeError {
		t.Errorf("invalid JSON response = %+v", msg)
	}
}

func TestWebSocket_FullConnection(t *testing.T) {
	env := newTestEnv(t, testSecret)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"feedback"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", msg)
	}

	env.srv.Hub().Broadcast("feedback", map[string]any{"port": 7})

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != "feedback" {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["port"] != float64(7) {
		t.Errorf("payload = %v", msg.Payload)
	}
}
