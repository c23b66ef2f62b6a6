// Package api implements the HTTP REST API and WebSocket server for the
// sorting kiosk.
//
// This package provides:
//   - REST endpoints for session control, scan injection, settings, and history
//   - WebSocket hub for real-time item result broadcasts to the kiosk UI
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API server sits between the kiosk UI and the session controller. The
// UI forwards scanner input (keystrokes and complete codes) to the controller
// through the input endpoints; item results and session events flow back over
// the WebSocket hub and MQTT.
//
// The server binds to localhost by default and carries no authentication:
// it is an operator panel on the kiosk itself, not a network-facing service.
//
// # Graceful Degradation
//
// The server operates without MQTT, hardware, or a session repository.
// Endpoints backed by an absent dependency report it rather than fail the
// whole process.
package api
