// Package logging provides structured logging for MOBAflow.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the service.
//
// # Features
//
//   - JSON output for unattended operation, text output at the layout bench
//   - Default fields (service, version) on all log entries
//   - trace_id/span_id on entries logged with a traced context
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("z21").Info("connected", "address", addr)
//
// Never log secrets such as the JWT secret or MQTT password.
package logging
