// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
// Rooms are reachable as /ws/{room} and as /ws/chat/{room}/.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.HealthHandler)
	mux.HandleFunc("/ws/{room}", s.WebSocketHandler)
	mux.HandleFunc("/ws/chat/{room}/{$}", s.WebSocketHandler)
	mux.HandleFunc("/rooms", s.RoomsHandler)
	mux.HandleFunc("/test", s.TestPageHandler)
	return mux
}
