// Package api implements the HTTP REST API and WebSocket server of the RF
// bridge service.
//
// This package provides:
//   - REST endpoints for bridge status, device registration, commands,
//     discovery scans and serial port listing
//   - WebSocket hub relaying state, discovery and health events
//   - Prometheus exposition of bridge counters on /metrics
//   - Middleware stack (request ID, logging, recovery, body limit, JWT)
//
// # Security
//
// When api.jwt_secret is set every /api/v1 route except /health requires a
// bearer token. Routes that change state require the operator role.
// WebSocket clients pass the token in the "token" query parameter.
// Without a secret the API is open, which suits a bench setup only.
package api
