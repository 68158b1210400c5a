package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
// Only the integration tests actually connect.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "mobaflow-test",
		},
		QoS:         1,
		TopicPrefix: "layout",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("mobaflow")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ServiceStatus", topics.ServiceStatus(), "mobaflow/status"},
		{"Z21Status", topics.Z21Status(), "mobaflow/z21/status"},
		{"Z21SystemState", topics.Z21SystemState(), "mobaflow/z21/system_state"},
		{"Z21Connection", topics.Z21Connection(), "mobaflow/z21/connection"},
		{"Feedback", topics.Feedback(42), "mobaflow/feedback/42"},
		{"JourneyState", topics.JourneyState("re1"), "mobaflow/journey/re1/state"},
		{"StationReached", topics.StationReached("re1"), "mobaflow/journey/re1/station"},
		{"Execution", topics.Execution("workflow", "wf-1"), "mobaflow/execution/workflow/wf-1"},
		{"Command", topics.Command("estop"), "mobaflow/command/estop"},
		{"AllCommands", topics.AllCommands(), "mobaflow/command/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestTopicsPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "mobaflow"},
		{"/club/anlage/", "club/anlage"},
		{"home", "home"},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.prefix).ServiceStatus(); got != tt.want+"/status" {
			t.Errorf("NewTopics(%q).ServiceStatus() = %q", tt.prefix, got)
		}
	}

	var zero Topics
	if got := zero.Feedback(1); got != "mobaflow/feedback/1" {
		t.Errorf("zero Topics = %q, want default prefix", got)
	}
}

func TestCommandName(t *testing.T) {
	topics := NewTopics("mobaflow")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"mobaflow/command/estop", "estop", true},
		{"mobaflow/command/simulate/12", "simulate/12", true},
		{"mobaflow/command/", "", false},
		{"mobaflow/feedback/1", "", false},
		{"other/command/estop", "", false},
	}
	for _, tt := range tests {
		got, ok := topics.CommandName(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CommandName(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "moba"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "moba" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q", opts.Username)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto reconnect with clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil {
		t.Errorf("TLS not configured: %v", opts.Servers[0])
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("layout"), "mobaflow-test")

	if !opts.WillEnabled || opts.WillTopic != "layout/status" || !opts.WillRetained {
		t.Errorf("LWT = enabled %v topic %q retained %v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var status serviceStatus
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("LWT payload is not JSON: %v", err)
	}
	if status.Status != statusOffline || status.Reason != reasonUnexpected || status.ClientID != "mobaflow-test" {
		t.Errorf("LWT payload = %+v", status)
	}
}

func TestStatusPayload(t *testing.T) {
	var status serviceStatus
	if err := json.Unmarshal(statusPayload(statusOnline, "c1", ""), &status); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if status.Status != "online" || status.Timestamp == "" {
		t.Errorf("status = %+v", status)
	}
	if strings.Contains(string(statusPayload(statusOnline, "c1", "")), "reason") {
		t.Error("empty reason should be omitted")
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestDisconnectedClient(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	if c.IsConnected() {
		t.Fatal("new client reports connected")
	}
	if got := c.Topics().Feedback(1); got != "layout/feedback/1" {
		t.Errorf("Topics() prefix not taken from config: %q", got)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish invalid qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"publish json unencodable", c.PublishJSON("t", make(chan int), false), ErrPublishFailed},
		{"publish json disconnected", c.PublishJSON("t", map[string]int{"a": 1}, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, handler), ErrInvalidTopic},
		{"subscribe invalid qos", c.Subscribe("t", 3, handler), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, handler), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("t"), ErrNotConnected},
		{"health check", c.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("err = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 || c.HasSubscription("t") {
		t.Error("failed subscribe left a tracked subscription")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client = %v", err)
	}
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	c := newClient(testConfig())
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { return nil }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors=%v warns=%v, want one of each", logger.errors, logger.warns)
	}
}

func TestDispatchWithoutLogger(t *testing.T) {
	c := newClient(testConfig())
	// Must not panic.
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
}

func TestCallbacks(t *testing.T) {
	c := newClient(testConfig())
	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	want := errors.New("broker gone")
	c.handleDisconnect(want)
	if !errors.Is(lost, want) {
		t.Errorf("OnDisconnect got %v, want %v", lost, want)
	}
	if c.IsConnected() {
		t.Error("connected after handleDisconnect")
	}
}
