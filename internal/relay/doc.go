// Package relay fans controller and automation events out to the
// service's sinks and keeps per-port feedback statistics.
//
// Sinks are optional. A nil Publisher disables MQTT, a nil PointWriter
// disables InfluxDB, a nil Broadcaster disables the WebSocket stream and
// a nil MetricsSink disables Prometheus updates. Statistics are always
// kept.
//
// With a Publisher and a Controller the relay also subscribes to the
// MQTT command tree ({prefix}/command/#):
//
//	track_power       {"on": true}
//	emergency_stop    (no payload)
//	simulate          {"port": 5}
//	reset             (no payload) resets debounce timers and journeys
//	reset_statistics  {"port": 5} or no payload for all ports
package relay
