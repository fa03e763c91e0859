// Package api implements the HTTP REST API and WebSocket server for the
// Mannito bridge.
//
// This package provides:
//   - read endpoints for devices, sensors, slot parameters and controller metadata
//   - device commands (on/off, power level) through the coordinator
//   - admin operations (forced refresh, single-device probe, metadata invalidation, audit log)
//   - a WebSocket hub relaying refresh and command events
//   - JWT authentication with role permissions and ticket-based WebSocket auth
//
// # Architecture
//
// The server reads the coordinator's registry and never calls the controller
// for plain reads. Commands go through the coordinator so the registry and
// every listener (MQTT bridge, telemetry, WebSocket hub) see the same result.
//
//	server, err := api.New(deps)
//	coord.AddListener(server.Hub())
//	server.Start(ctx)
//	defer server.Close()
//
// # Security
//
// Operators are configured with argon2id password hashes. POST /auth/login
// returns a short-lived HS256 token; WebSocket clients exchange it for a
// single-use ticket so the token never appears in a URL.
package api
