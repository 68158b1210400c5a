package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

const namespace = "mobaflow"

// StatsSource provides controller client counters at scrape time.
// *z21.Client satisfies it.
type StatsSource interface {
	Stats() z21.ClientStats
}

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	actionsTotal    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	triggersTotal   *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
	triggersSkipped *prometheus.CounterVec
	stationsReached *prometheus.CounterVec

	feedbackTotal *prometheus.CounterVec
	connected     prometheus.Gauge
	mainCurrent   prometheus.Gauge
	progCurrent   prometheus.Gauge
	temperature   prometheus.Gauge
	supplyVoltage prometheus.Gauge
	busStatus     *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		actionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "actions_total",
			Help:      "Executed workflow actions by type and result",
		}, []string{"type", "result"}),

		actionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "action_duration_seconds",
			Help:      "Action duration including the delay after it",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),

		triggersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "trigger_executions_total",
			Help:      "Workflow and station executions by kind and status",
		}, []string{"kind", "status"}),

		triggerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "trigger_duration_seconds",
			Help:      "Duration of one workflow or station execution",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),

		triggersSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "trigger_skipped_total",
			Help:      "Feedback events that did not start an execution",
		}, []string{"kind", "reason"}),

		stationsReached: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journey",
			Name:      "stations_reached_total",
			Help:      "Stations reached per journey",
		}, []string{"journey"}),

		feedbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "feedback_events_total",
			Help:      "Feedback events per input port",
		}, []string{"port"}),

		connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "connected",
			Help:      "1 while the controller connection is up",
		}),

		mainCurrent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "main_current_milliamperes",
			Help:      "Main track current",
		}),

		progCurrent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "prog_current_milliamperes",
			Help:      "Programming track current",
		}),

		temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "temperature_celsius",
			Help:      "Command station internal temperature",
		}),

		supplyVoltage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "supply_voltage_millivolts",
			Help:      "Command station supply voltage",
		}),

		busStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "z21",
			Name:      "bus_status",
			Help:      "Track status flags, 1 when set",
		}, []string{"flag"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterClient exports the counters of src, read at scrape time.
func (m *Metrics) RegisterClient(src StatsSource) error {
	return m.registry.Register(newClientCollector(src))
}

// ActionExecuted implements automation.Recorder.
func (m *Metrics) ActionExecuted(actionType automation.ActionType, result string, d time.Duration) {
	m.actionsTotal.WithLabelValues(string(actionType), result).Inc()
	m.actionDuration.WithLabelValues(string(actionType)).Observe(d.Seconds())
}

// TriggerExecuted implements automation.Recorder.
func (m *Metrics) TriggerExecuted(kind automation.TriggerKind, status automation.ExecutionStatus, d time.Duration) {
	m.triggersTotal.WithLabelValues(string(kind), string(status)).Inc()
	m.triggerDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// TriggerSkipped implements automation.Recorder.
func (m *Metrics) TriggerSkipped(kind automation.TriggerKind, reason string) {
	m.triggersSkipped.WithLabelValues(string(kind), reason).Inc()
}

// StationReached implements automation.Recorder.
func (m *Metrics) StationReached(journey string) {
	m.stationsReached.WithLabelValues(journey).Inc()
}

// FeedbackReceived counts one feedback event on port.
func (m *Metrics) FeedbackReceived(port uint32) {
	m.feedbackTotal.WithLabelValues(formatPort(port)).Inc()
}

// SetConnected records the controller connection state.
func (m *Metrics) SetConnected(connected bool) {
	m.connected.Set(boolValue(connected))
}

// SetSystemState records one system-state broadcast.
func (m *Metrics) SetSystemState(s z21.SystemTelemetry) {
	m.mainCurrent.Set(float64(s.MainCurrent))
	m.progCurrent.Set(float64(s.ProgCurrent))
	m.temperature.Set(float64(s.Temperature))
	m.supplyVoltage.Set(float64(s.SupplyVoltage))
}

// SetBusStatus records the track status flags.
func (m *Metrics) SetBusStatus(s z21.BusStatus) {
	m.busStatus.WithLabelValues("emergency_stop").Set(boolValue(s.EmergencyStop))
	m.busStatus.WithLabelValues("track_off").Set(boolValue(s.TrackOff))
	m.busStatus.WithLabelValues("short_circuit").Set(boolValue(s.ShortCircuit))
	m.busStatus.WithLabelValues("programming_mode").Set(boolValue(s.ProgrammingMode))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
