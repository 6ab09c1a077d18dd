// Package server drives per-connection session lifecycles via the
// Supervisor type.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// errShuttingDown is the close reason used when the relay stops.
var errShuttingDown = errors.New("relay shutting down")

// Supervisor owns every session from join to teardown. Sessions move
// Connecting -> Joined -> Closed; Close is idempotent and is the single exit
// path for client disconnects, transport errors, dead recipients and
// shutdown.
type Supervisor struct {
	cfg        Config
	registry   *Registry
	dispatcher *Dispatcher
	auth       chat.Authenticator
	persister  chat.Persister
	rooms      *roomBook

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup

	log zerolog.Logger
}

// NewSupervisor wires a Supervisor around registry. auth, persister and
// rooms may be nil: without an authenticator only named identities count as
// authenticated, a nil persister or room book skips that step.
func NewSupervisor(cfg Config, registry *Registry, auth chat.Authenticator, persister chat.Persister, rooms chat.RoomBook, log zerolog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:       sanitizeConfig(cfg),
		registry:  registry,
		auth:      auth,
		persister: persister,
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}
	s.rooms = newRoomBook(rooms, s.cfg.RoomPrefix)
	s.dispatcher = NewDispatcher(registry, s.closeDead, log.With().Str("component", "dispatcher").Logger())
	return s
}

// Registry returns the membership registry the supervisor joins sessions to.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

func (s *Supervisor) keepalive() keepalive {
	return keepalive{
		pongWait:   s.cfg.PongWait,
		pingPeriod: s.cfg.PingPeriod,
		writeWait:  s.cfg.WriteWait,
	}
}

// Open runs the Connecting stage: it records the room durably (best effort)
// and joins a new connection to room. The returned connection is Joined and
// already receives broadcasts; the caller acknowledges the client afterwards.
func (s *Supervisor) Open(ctx context.Context, room string, identity chat.Identity, addr string) (*Connection, error) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return nil, errShuttingDown
	}

	c := NewConnection(room, identity, addr, s.cfg, s.log)

	ensureCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	if err := s.rooms.ensure(ensureCtx, room); err != nil {
		c.log.Warn().Err(err).Msg("room record unavailable; continuing with live membership only")
	}

	if err := s.registry.Join(room, c); err != nil {
		c.shutdown()
		return nil, fmt.Errorf("join %q: %w", room, err)
	}
	c.markJoined()

	c.log.Info().Str("addr", addr).Msg("session joined")
	return c, nil
}

// Run attaches the accepted socket to c and starts its pumps.
func (s *Supervisor) Run(c *Connection, ws *websocket.Conn) {
	c.attach(ws)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.Close(c, errShuttingDown)
		c.closeSocket()
		return
	}
	s.wg.Add(2)
	s.mu.Unlock()

	k := s.keepalive()
	onClose := func(reason error) { s.Close(c, reason) }

	go func() {
		defer s.wg.Done()
		c.writePump(k, onClose)
	}()
	go func() {
		defer s.wg.Done()
		c.readPump(k, func(raw []byte) { s.handle(c, raw) }, onClose)
	}()
}

// handle processes one inbound payload of a joined session.
func (s *Supervisor) handle(c *Connection, raw []byte) {
	if c.State() != StateJoined {
		return
	}

	if s.cfg.RequireAuth && !s.isAuthenticated(c.identity) {
		c.log.Debug().Err(chat.ErrUnauthenticated).Msg("message rejected")
		s.reply(c, chat.EncodeNotice(chat.TextAuthRequired))
		return
	}

	content, err := chat.ParseContent(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("invalid payload")
		s.reply(c, chat.EncodeError(chat.TextInvalidPayload))
		return
	}

	msg := chat.Message{Raw: raw, Content: content, Room: c.room, Sender: c.identity}
	if msg.Text() == "" {
		c.log.Debug().Msg("ignoring empty message")
		return
	}

	if err := s.persist(msg); err != nil {
		if s.cfg.PersistFailurePolicy == PersistFailureReject {
			c.log.Error().Err(err).Msg("message not saved; broadcast aborted")
			s.reply(c, chat.EncodeError(chat.TextPersistFailed))
			return
		}
		c.log.Error().Err(err).Msg("message not saved; broadcasting anyway")
	}

	var exclude *Connection
	if s.cfg.ExcludeSender {
		exclude = c
	}
	delivered := s.dispatcher.Broadcast(c.room, msg, exclude)
	c.log.Debug().Int("delivered", delivered).Msg("message broadcast")
}

func (s *Supervisor) isAuthenticated(id chat.Identity) bool {
	if s.auth == nil {
		return !id.Anonymous()
	}
	return s.auth.IsAuthenticated(id)
}

// persist stores msg and returns once the store has accepted or rejected it.
func (s *Supervisor) persist(msg chat.Message) error {
	if s.persister == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PersistTimeout)
	defer cancel()

	rec := chat.NewRecord(s.rooms.recordName(msg.Room), msg, time.Now())
	if err := s.persister.SaveMessage(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", chat.ErrPersistence, err)
	}
	return nil
}

// reply sends payload to c alone. A connection that cannot take it is closed.
func (s *Supervisor) reply(c *Connection, payload []byte) {
	if err := c.deliver(payload); err != nil {
		s.Close(c, err)
	}
}

func (s *Supervisor) closeDead(c *Connection, err error) {
	s.Close(c, err)
}

// Close ends the session: membership is removed first, then the queue is
// closed so the write pump sends a close frame and releases the socket.
func (s *Supervisor) Close(c *Connection, reason error) {
	s.registry.Leave(c.room, c)
	if !c.shutdown() {
		return
	}

	ev := c.log.Info()
	if reason != nil && !errors.Is(reason, chat.ErrTransportClosed) {
		ev = c.log.Warn().Err(reason)
	}
	ev.Msg("session closed")
}

// Shutdown closes every session and waits for their pumps to exit or for ctx
// to expire, in which case remaining sockets are closed forcibly.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()

	conns := s.registry.Connections()
	s.log.Info().Int("sessions", len(conns)).Msg("shutting down sessions")
	for _, c := range conns {
		s.Close(c, errShuttingDown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all sessions closed")
		return nil
	case <-ctx.Done():
		for _, c := range conns {
			c.closeSocket()
		}
		s.log.Warn().Msg("shutdown deadline reached; sockets closed forcibly")
		return ctx.Err()
	}
}
