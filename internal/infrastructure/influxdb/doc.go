// Package influxdb writes MOBAflow telemetry to InfluxDB v2.
//
// Measurements:
//   - z21_system_state: currents, voltages, temperature and central state
//   - feedback: one point per R-Bus feedback event, tagged by port
//   - journey_lap: counted laps and station arrivals per journey
//   - trigger_execution: duration and status of workflow/station/journey runs
//
// The integration is optional and disabled unless influxdb.enabled is set.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	client.WriteFeedback(5, time.Now())
package influxdb
