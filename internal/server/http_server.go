package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// CreateServer builds the http.Server for the relay. Its timeouts cover the
// plain HTTP routes only: upgraded sockets are hijacked and governed by the
// keepalive deadlines instead.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer listens until the server is shut down. A clean shutdown
// returns nil.
func StartServer(server *http.Server, log zerolog.Logger) error {
	log.Info().Str("addr", server.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer stops accepting requests and waits for in-flight ones.
// Room sockets are not tracked by http.Server; Supervisor.Shutdown closes
// those.
func ShutdownServer(ctx context.Context, server *http.Server, log zerolog.Logger) error {
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown incomplete")
		return err
	}
	log.Info().Msg("HTTP listener stopped")
	return nil
}
