package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "mobaflow-dev-token",
		Org:           "mobaflow",
		Bucket:        "layout",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := Connect(testConfig())
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

// fakeWriteAPI records points. Methods not overridden panic via the nil
// embedded interface.
type fakeWriteAPI struct {
	api.WriteAPI

	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriteAPI) last(t *testing.T) *write.Point {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.points) == 0 {
		t.Fatal("no points written")
	}
	return f.points[len(f.points)-1]
}

func newTestClient() (*Client, *fakeWriteAPI) {
	fake := &fakeWriteAPI{}
	return newClient(testConfig(), fake), fake
}

func tagsOf(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func fieldsOf(p *write.Point) map[string]any {
	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteSystemState(t *testing.T) {
	c, fake := newTestClient()
	ts := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

	c.WriteSystemState(SystemSample{MainCurrent: 350, Temperature: 41, SupplyVoltage: 18000, CentralState: 0x02}, ts)

	p := fake.last(t)
	if p.Name() != MeasurementSystemState || !p.Time().Equal(ts) {
		t.Errorf("point = %s at %v", p.Name(), p.Time())
	}
	fields := fieldsOf(p)
	if fields["main_current_ma"] != int64(350) || fields["temperature_c"] != int64(41) {
		t.Errorf("fields = %v", fields)
	}
	if fields["central_state"] != uint64(2) {
		t.Errorf("central_state = %v (%T)", fields["central_state"], fields["central_state"])
	}
}

func TestWriteFeedback(t *testing.T) {
	c, fake := newTestClient()
	c.WriteFeedback(17, time.Now())

	p := fake.last(t)
	if p.Name() != MeasurementFeedback || tagsOf(p)["port"] != "17" {
		t.Errorf("point = %s tags %v", p.Name(), tagsOf(p))
	}
	if fieldsOf(p)["count"] != int64(1) {
		t.Errorf("fields = %v", fieldsOf(p))
	}
}

func TestWriteJourneyLap(t *testing.T) {
	c, fake := newTestClient()
	c.WriteJourneyLap(LapSample{
		JourneyID: "re1", JourneyName: "RE 1", StationName: "Nord",
		Position: 2, Counter: 1, Reached: true,
	}, time.Now())

	p := fake.last(t)
	tags := tagsOf(p)
	if tags["journey_id"] != "re1" || tags["station"] != "Nord" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldsOf(p)
	if fields["position"] != int64(2) || fields["reached"] != true {
		t.Errorf("fields = %v", fields)
	}
}

func TestWriteExecution(t *testing.T) {
	c, fake := newTestClient()
	c.WriteExecution("workflow", "wf-1", "completed", 1500*time.Millisecond, time.Now())

	p := fake.last(t)
	if tagsOf(p)["status"] != "completed" || fieldsOf(p)["duration_ms"] != int64(1500) {
		t.Errorf("point tags %v fields %v", tagsOf(p), fieldsOf(p))
	}
}

func TestWritePoint(t *testing.T) {
	c, fake := newTestClient()
	before := time.Now()
	c.WritePoint("custom", map[string]string{"k": "v"}, map[string]any{"x": 1.5})

	p := fake.last(t)
	if p.Name() != "custom" || p.Time().Before(before) {
		t.Errorf("point = %s at %v", p.Name(), p.Time())
	}
}

func TestCloseFlushesAndDropsLaterWrites(t *testing.T) {
	c, fake := newTestClient()
	c.WriteFeedback(1, time.Now())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fake.flushes != 1 {
		t.Errorf("flushes = %d, want 1", fake.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	c.WriteFeedback(2, time.Now())
	c.Flush()
	if len(fake.points) != 1 || fake.flushes != 1 {
		t.Errorf("writes after Close reached the API: points=%d flushes=%d", len(fake.points), fake.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v", err)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	c, _ := newTestClient()
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	go c.handleWriteErrors(errs)
	errs <- errors.New("bucket not found")
	close(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("write error not delivered")
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	client.WriteFeedback(1, time.Now())
	client.Flush()
}
