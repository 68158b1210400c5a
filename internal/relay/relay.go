package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/influxdb"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/mqtt"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// WebSocket channels used by Broadcast.
const (
	ChannelFeedback    = "feedback"
	ChannelStatus      = "z21.status"
	ChannelSystemState = "z21.system_state"
	ChannelConnection  = "z21.connection"
	ChannelJourney     = "journey.state"
	ChannelStation     = "journey.station"
	ChannelExecution   = "execution"
)

// commandTimeout bounds one controller command received over MQTT.
const commandTimeout = 5 * time.Second

// Source is the controller event source. *z21.Client satisfies it.
type Source interface {
	OnFeedback(fn func(z21.FeedbackEvent)) func()
	OnStatusChanged(fn func(z21.BusStatus)) func()
	OnSystemState(fn func(z21.SystemTelemetry)) func()
	OnConnectionChanged(fn func(bool)) func()
}

// Controller executes commands received on the MQTT command tree.
// *z21.Client satisfies it.
type Controller interface {
	TrackPowerOn(ctx context.Context) error
	TrackPowerOff(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	SimulateFeedback(port int) error
}

// JourneySource is the journey event source. *automation.JourneyManager
// satisfies it.
type JourneySource interface {
	OnStateChanged(fn func(automation.JourneyState)) func()
	OnStationReached(fn func(automation.StationReached)) func()
}

// ExecutionSource is a source of finished executions.
type ExecutionSource interface {
	OnExecution(fn func(automation.Execution)) func()
}

// Publisher is the MQTT sink. *mqtt.Client satisfies it.
type Publisher interface {
	Topics() mqtt.Topics
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// PointWriter is the InfluxDB sink. *influxdb.Client satisfies it.
type PointWriter interface {
	WriteSystemState(s influxdb.SystemSample, ts time.Time)
	WriteFeedback(port uint32, ts time.Time)
	WriteJourneyLap(l influxdb.LapSample, ts time.Time)
	WriteExecution(kind, triggerID, status string, duration time.Duration, ts time.Time)
}

// Broadcaster is the WebSocket sink. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// MetricsSink is the Prometheus sink. *metrics.Metrics satisfies it.
type MetricsSink interface {
	FeedbackReceived(port uint32)
	SetConnected(connected bool)
	SetSystemState(s z21.SystemTelemetry)
	SetBusStatus(s z21.BusStatus)
}

// Logger is the logging interface used by the relay.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Relay. Every field is optional.
type Options struct {
	Publisher   Publisher
	Points      PointWriter
	Broadcaster Broadcaster
	Metrics     MetricsSink
	Controller  Controller
	Logger      Logger

	// Reset is called for the MQTT "reset" command.
	Reset func()

	// StatisticsFilter ignores repeated feedback on one port within
	// this interval when counting statistics.
	StatisticsFilter time.Duration
}

// Relay forwards events to the configured sinks.
type Relay struct {
	opts  Options
	stats *Statistics

	mu         sync.Mutex
	unsubs     []func()
	subscribed string
	closed     bool
}

// New creates a relay. Nothing is forwarded until a source is attached.
func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Relay{
		opts:  opts,
		stats: NewStatistics(opts.StatisticsFilter),
	}
}

// Statistics returns the per-port feedback statistics.
func (r *Relay) Statistics() *Statistics {
	return r.stats
}

func (r *Relay) track(unsub ...func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubs = append(r.unsubs, unsub...)
}

// AttachClient subscribes to controller events.
func (r *Relay) AttachClient(src Source) {
	r.track(
		src.OnFeedback(r.handleFeedback),
		src.OnStatusChanged(r.handleStatus),
		src.OnSystemState(r.handleSystemState),
		src.OnConnectionChanged(r.handleConnection),
	)
}

// AttachJourneys subscribes to journey events.
func (r *Relay) AttachJourneys(src JourneySource) {
	r.track(
		src.OnStateChanged(r.handleJourneyState),
		src.OnStationReached(r.handleStationReached),
	)
}

// AttachExecutions subscribes to finished executions.
func (r *Relay) AttachExecutions(src ExecutionSource) {
	r.track(src.OnExecution(r.handleExecution))
}

// Start subscribes to the MQTT command tree. It is a no-op without a
// Publisher or a Controller.
func (r *Relay) Start() error {
	if r.opts.Publisher == nil || r.opts.Controller == nil {
		return nil
	}
	topic := r.opts.Publisher.Topics().AllCommands()
	if err := r.opts.Publisher.Subscribe(topic, 1, r.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	r.mu.Lock()
	r.subscribed = topic
	r.mu.Unlock()
	return nil
}

// Close detaches every source and drops the command subscription.
// It is safe to call more than once.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	unsubs := r.unsubs
	r.unsubs = nil
	topic := r.subscribed
	r.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	if topic != "" {
		return r.opts.Publisher.Unsubscribe(topic)
	}
	return nil
}

func (r *Relay) publish(topic string, v any, retained bool) {
	if r.opts.Publisher == nil {
		return
	}
	if err := r.opts.Publisher.PublishJSON(topic, v, retained); err != nil {
		r.opts.Logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (r *Relay) broadcast(channel string, payload any) {
	if r.opts.Broadcaster != nil {
		r.opts.Broadcaster.Broadcast(channel, payload)
	}
}

// feedbackMessage is the MQTT and WebSocket payload for a feedback event.
type feedbackMessage struct {
	Port       uint32    `json:"port"`
	Count      int       `json:"count"`
	ReceivedAt time.Time `json:"received_at"`
}

func (r *Relay) handleFeedback(ev z21.FeedbackEvent) {
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	r.stats.Record(ev.Port, at)
	ps, _ := r.stats.Port(ev.Port)
	msg := feedbackMessage{Port: ev.Port, Count: ps.Count, ReceivedAt: at}

	if r.opts.Metrics != nil {
		r.opts.Metrics.FeedbackReceived(ev.Port)
	}
	if r.opts.Points != nil {
		r.opts.Points.WriteFeedback(ev.Port, at)
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().Feedback(ev.Port), msg, false)
	}
	r.broadcast(ChannelFeedback, msg)
}

func (r *Relay) handleStatus(s z21.BusStatus) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.SetBusStatus(s)
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().Z21Status(), s, true)
	}
	r.broadcast(ChannelStatus, s)
}

func (r *Relay) handleSystemState(s z21.SystemTelemetry) {
	now := time.Now()
	if r.opts.Metrics != nil {
		r.opts.Metrics.SetSystemState(s)
	}
	if r.opts.Points != nil {
		r.opts.Points.WriteSystemState(influxdb.SystemSample{
			MainCurrent:         int(s.MainCurrent),
			ProgCurrent:         int(s.ProgCurrent),
			FilteredMainCurrent: int(s.FilteredMainCurrent),
			Temperature:         int(s.Temperature),
			SupplyVoltage:       int(s.SupplyVoltage),
			VCCVoltage:          int(s.VCCVoltage),
			CentralState:        s.CentralState,
			CentralStateEx:      s.CentralStateEx,
		}, now)
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().Z21SystemState(), s, true)
	}
	r.broadcast(ChannelSystemState, s)
}

// connectionMessage is the payload for connection changes.
type connectionMessage struct {
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

func (r *Relay) handleConnection(connected bool) {
	if connected {
		r.opts.Logger.Info("controller connected")
	} else {
		r.opts.Logger.Warn("controller disconnected")
	}
	msg := connectionMessage{Connected: connected, At: time.Now()}
	if r.opts.Metrics != nil {
		r.opts.Metrics.SetConnected(connected)
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().Z21Connection(), msg, true)
	}
	r.broadcast(ChannelConnection, msg)
}

func (r *Relay) handleJourneyState(s automation.JourneyState) {
	if r.opts.Points != nil && s.Counter > 0 {
		ts := s.LastFeedback
		if ts.IsZero() {
			ts = time.Now()
		}
		r.opts.Points.WriteJourneyLap(influxdb.LapSample{
			JourneyID:   s.JourneyID,
			JourneyName: s.JourneyName,
			StationName: s.CurrentStationName,
			Position:    s.CurrentPos,
			Counter:     s.Counter,
		}, ts)
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().JourneyState(s.JourneyID), s, true)
	}
	r.broadcast(ChannelJourney, s)
}

// stationMessage is the payload for a reached station.
type stationMessage struct {
	JourneyID     string    `json:"journey_id"`
	JourneyName   string    `json:"journey_name"`
	StationID     string    `json:"station_id"`
	StationName   string    `json:"station_name"`
	StationNumber int       `json:"station_number"`
	Track         *int      `json:"track,omitempty"`
	ReachedAt     time.Time `json:"reached_at"`
}

func (r *Relay) handleStationReached(ev automation.StationReached) {
	if r.opts.Points != nil {
		r.opts.Points.WriteJourneyLap(influxdb.LapSample{
			JourneyID:   ev.JourneyID,
			JourneyName: ev.JourneyName,
			StationName: ev.Station.Name,
			Position:    ev.Position,
			Counter:     ev.Station.NumberOfLapsToStop,
			Reached:     true,
		}, ev.ReachedAt)
	}
	msg := stationMessage{
		JourneyID:     ev.JourneyID,
		JourneyName:   ev.JourneyName,
		StationID:     ev.Station.ID,
		StationName:   ev.Station.Name,
		StationNumber: ev.StationNumber(),
		Track:         ev.Station.Track,
		ReachedAt:     ev.ReachedAt,
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().StationReached(ev.JourneyID), msg, false)
	}
	r.broadcast(ChannelStation, msg)
}

func (r *Relay) handleExecution(e automation.Execution) {
	if r.opts.Points != nil {
		r.opts.Points.WriteExecution(string(e.TriggerKind), e.TriggerID, string(e.Status),
			time.Duration(e.DurationMS)*time.Millisecond, e.StartedAt)
	}
	if r.opts.Publisher != nil {
		r.publish(r.opts.Publisher.Topics().Execution(string(e.TriggerKind), e.TriggerID), e, false)
	}
	r.broadcast(ChannelExecution, e)
}

// handleCommand implements mqtt.MessageHandler for the command tree.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	name, ok := r.opts.Publisher.Topics().CommandName(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, topic)
	}
	err := r.Execute(name, payload)
	if err != nil {
		r.opts.Logger.Warn("mqtt command failed", "command", name, "error", err)
		return err
	}
	r.opts.Logger.Info("mqtt command executed", "command", name)
	return nil
}

// Execute runs one named command with its JSON payload.
func (r *Relay) Execute(name string, payload []byte) error {
	switch name {
	case "reset_statistics":
		return r.resetStatistics(payload)
	case "reset":
		if r.opts.Reset != nil {
			r.opts.Reset()
		}
		return nil
	}

	if r.opts.Controller == nil {
		return ErrNoController
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch name {
	case "track_power":
		var req struct {
			On *bool `json:"on"`
		}
		if err := decodePayload(payload, &req); err != nil {
			return err
		}
		if req.On == nil {
			return fmt.Errorf("%w: missing \"on\"", ErrInvalidPayload)
		}
		if *req.On {
			return r.opts.Controller.TrackPowerOn(ctx)
		}
		return r.opts.Controller.TrackPowerOff(ctx)
	case "emergency_stop":
		return r.opts.Controller.EmergencyStop(ctx)
	case "simulate":
		var req struct {
			Port *int `json:"port"`
		}
		if err := decodePayload(payload, &req); err != nil {
			return err
		}
		if req.Port == nil {
			return fmt.Errorf("%w: missing \"port\"", ErrInvalidPayload)
		}
		return r.opts.Controller.SimulateFeedback(*req.Port)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

func (r *Relay) resetStatistics(payload []byte) error {
	var req struct {
		Port *uint32 `json:"port"`
	}
	if len(payload) > 0 {
		if err := decodePayload(payload, &req); err != nil {
			return err
		}
	}
	if req.Port == nil {
		r.stats.Reset()
		return nil
	}
	r.stats.ResetPort(*req.Port)
	return nil
}

func decodePayload(payload []byte, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	return nil
}
