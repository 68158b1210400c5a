// Package metrics exposes Prometheus collectors for the controller
// connection and the automation engine.
//
// Metrics uses its own registry rather than the global default, so tests
// and multiple instances do not collide. Handler serves the registry in
// the Prometheus text format.
//
// Metrics implements automation.Recorder and is passed to the managers
// through automation.ManagerOptions.
package metrics
