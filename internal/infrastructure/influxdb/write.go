package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSystemState = "z21_system_state"
	MeasurementFeedback    = "feedback"
	MeasurementJourneyLap  = "journey_lap"
	MeasurementExecution   = "trigger_execution"
)

// SystemSample is one command-station telemetry reading.
// Currents are in mA, voltages in mV, temperature in °C.
type SystemSample struct {
	MainCurrent         int
	ProgCurrent         int
	FilteredMainCurrent int
	Temperature         int
	SupplyVoltage       int
	VCCVoltage          int
	CentralState        uint8
	CentralStateEx      uint8
}

// LapSample is one counted lap of a journey.
type LapSample struct {
	JourneyID   string
	JourneyName string
	StationName string
	Position    int
	Counter     int

	// Reached is true when the lap completed the stop at StationName.
	Reached bool
}

// WriteSystemState records a command-station telemetry reading.
func (c *Client) WriteSystemState(s SystemSample, ts time.Time) {
	c.WritePointWithTime(MeasurementSystemState, nil, map[string]any{
		"main_current_ma":          s.MainCurrent,
		"prog_current_ma":          s.ProgCurrent,
		"filtered_main_current_ma": s.FilteredMainCurrent,
		"temperature_c":            s.Temperature,
		"supply_voltage_mv":        s.SupplyVoltage,
		"vcc_voltage_mv":           s.VCCVoltage,
		"central_state":            s.CentralState,
		"central_state_ex":         s.CentralStateEx,
	}, ts)
}

// WriteFeedback records one R-Bus feedback event.
func (c *Client) WriteFeedback(port uint32, ts time.Time) {
	c.WritePointWithTime(MeasurementFeedback,
		map[string]string{"port": strconv.FormatUint(uint64(port), 10)},
		map[string]any{"count": 1},
		ts)
}

// WriteJourneyLap records a counted lap.
func (c *Client) WriteJourneyLap(l LapSample, ts time.Time) {
	c.WritePointWithTime(MeasurementJourneyLap,
		map[string]string{
			"journey_id":   l.JourneyID,
			"journey_name": l.JourneyName,
			"station":      l.StationName,
		},
		map[string]any{
			"position": l.Position,
			"counter":  l.Counter,
			"reached":  l.Reached,
		},
		ts)
}

// WriteExecution records the outcome of one trigger execution.
func (c *Client) WriteExecution(kind, triggerID, status string, duration time.Duration, ts time.Time) {
	c.WritePointWithTime(MeasurementExecution,
		map[string]string{
			"kind":       kind,
			"trigger_id": triggerID,
			"status":     status,
		},
		map[string]any{"duration_ms": duration.Milliseconds()},
		ts)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point. Writes on a closed client are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
