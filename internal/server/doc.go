// Package server implements the room relay: WebSocket connections, the room
// registry, the broadcast dispatcher and the session supervisor, plus the
// HTTP surface that accepts clients.
//
// The implementation is organized into specialized files for configuration,
// membership, dispatch, sessions, routing, and HTTP handlers. No state is
// package-global: a Registry and a Supervisor are created by the caller and
// handed to a Server.
package server
