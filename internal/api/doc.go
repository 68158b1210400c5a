// Package api implements the HTTP control surface and WebSocket event
// stream of MOBAflow.
//
// This package provides:
//   - Read endpoints for controller status, feedback statistics,
//     workflows, journeys and the execution log
//   - Control endpoints for track power, emergency stop, turnouts,
//     simulated feedback and automation resets
//   - A WebSocket hub that streams controller and journey events
//   - The Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Security
//
// Control routes (POST and DELETE) require an operator JWT in the
// Authorization header when security.jwt.secret is set. Without a secret
// every route is open, which is meant for development on a trusted
// network. Read routes and the WebSocket stream are always open.
//
// # Graceful Degradation
//
// Only the controller is required. Without a journey manager, execution
// log or statistics the corresponding endpoints report an empty result or
// 503.
package api
