// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, room statistics, and the built-in test page.
package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

//go:embed static/test.html
var testPage []byte

// Server is the HTTP front of the relay. It resolves the room and identity
// for each upgrade request and hands the session to the Supervisor.
type Server struct {
	cfg        Config
	supervisor *Supervisor
	auth       chat.Authenticator
	origins    *originPolicy
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewServer creates a Server for supervisor. auth may be nil, in which case
// every connection is anonymous.
func NewServer(cfg Config, supervisor *Supervisor, auth chat.Authenticator, log zerolog.Logger) *Server {
	cfg = sanitizeConfig(cfg)
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:        cfg,
		supervisor: supervisor,
		auth:       auth,
		origins:    origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log: log,
	}
}

// WebSocketHandler handles WebSocket upgrade requests for a room. The room
// name comes from the {room} path segment. The session joins its room
// before the upgrade completes, so a client that sees the connection open
// is already a member.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	room := r.PathValue("room")
	if !validRoomName(room) {
		http.Error(w, "Invalid room name.", http.StatusBadRequest)
		return
	}

	// Checked here as well as in the upgrader so a refused client never
	// becomes a room member.
	if !s.origins.check(r) {
		http.Error(w, "Origin not allowed.", http.StatusForbidden)
		return
	}

	// Unauthenticated clients may still connect. Whether they may send is
	// decided per message.
	var identity chat.Identity
	if s.auth != nil {
		id, ok := s.auth.Authenticate(r)
		if ok {
			identity = id
		}
	}

	conn, err := s.supervisor.Open(r.Context(), room, identity, r.RemoteAddr)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		s.log.Error().Err(err).Str("room", room).Msg("unable to open session")
		http.Error(w, http.StatusText(status), status)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("WebSocket upgrade failed")
		s.supervisor.Close(conn, err)
		return
	}

	s.supervisor.Run(conn, ws)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomrelay is running!")
}

// RoomsResponse is the body returned by RoomsHandler.
type RoomsResponse struct {
	Rooms       map[string]int `json:"rooms"`
	Connections int            `json:"connections"`
}

// RoomsHandler reports live membership counts per room.
func (s *Server) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	registry := s.supervisor.Registry()
	body := RoomsResponse{
		Rooms:       registry.Rooms(),
		Connections: registry.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("error writing rooms response")
	}
}

// TestPageHandler serves an HTML page for trying the relay from a browser.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write(testPage); err != nil {
		s.log.Error().Err(err).Msg("error writing HTML response")
	}
}
