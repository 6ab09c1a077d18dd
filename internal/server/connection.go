// Package server manages individual WebSocket connections, handling read/write
// pumps, rate limiting, and lifecycle state for each session.
package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// State is the lifecycle stage of a session.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// keepalive holds the socket deadlines used by the pumps.
type keepalive struct {
	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
}

// Connection is one client session attached to exactly one room. Delivery
// and close are serialised on mu: once the state is StateClosed the send
// channel is closed and every later delivery fails with chat.ErrDeadRecipient.
type Connection struct {
	id       string
	room     string
	identity chat.Identity
	addr     string

	ws             *websocket.Conn
	send           chan []byte
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig

	mu    sync.Mutex
	state State

	log zerolog.Logger
}

// NewConnection creates a Connection in StateConnecting for room. The socket
// is attached later, once the session has joined its room.
func NewConnection(room string, identity chat.Identity, addr string, cfg Config, log zerolog.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:             id,
		room:           room,
		identity:       identity,
		addr:           addr,
		send:           make(chan []byte, cfg.SendBufferSize),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		state:          StateConnecting,
		log: log.With().
			Str("conn", id).
			Str("room", room).
			Str("user", identity.DisplayName()).
			Logger(),
	}
}

// ID returns the connection's unique id.
func (c *Connection) ID() string { return c.id }

// Room returns the room the connection was opened for.
func (c *Connection) Room() string { return c.room }

// Identity returns the identity resolved at connect time.
func (c *Connection) Identity() chat.Identity { return c.identity }

// RemoteAddr returns the client address.
func (c *Connection) RemoteAddr() string { return c.addr }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) markJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateJoined
	return true
}

// deliver enqueues payload without blocking.
func (c *Connection) deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return fmt.Errorf("%w: connection closed", chat.ErrDeadRecipient)
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", chat.ErrDeadRecipient)
	}
}

// shutdown moves the connection to StateClosed and closes its queue. It
// reports whether this call performed the transition.
func (c *Connection) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	close(c.send)
	return true
}

func (c *Connection) attach(ws *websocket.Conn) {
	if ws != nil {
		ws.SetReadLimit(c.maxMessageSize)
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

// closeSocket closes the underlying socket, ignoring already-closed errors.
func (c *Connection) closeSocket() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return
	}
	if err := ws.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("error closing socket")
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Connection) setupReadConnection(k keepalive) {
	if err := c.ws.SetReadDeadline(time.Now().Add(k.pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.ws.SetPongHandler(func(string) error {
		if err := c.ws.SetReadDeadline(time.Now().Add(k.pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// classifyReadError logs the read failure and returns the close reason.
func (c *Connection) classifyReadError(err error) error {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn().Err(err).Msg("unexpected WebSocket close")
	default:
		c.log.Warn().Err(err).Msg("WebSocket read error")
	}
	return fmt.Errorf("%w: %w", chat.ErrTransportClosed, err)
}

// allow reports whether the rate limiter admits another inbound payload.
func (c *Connection) allow() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding message")
		return false
	}
	return true
}

// readPump is the receive loop. Every payload admitted while the session is
// joined goes to onMessage in arrival order; onClose runs once the loop ends.
// The socket itself is closed by writePump after the queue is closed.
func (c *Connection) readPump(k keepalive, onMessage func([]byte), onClose func(error)) {
	var reason error
	defer func() {
		onClose(reason)
	}()

	c.setupReadConnection(k)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			reason = c.classifyReadError(err)
			return
		}

		if c.State() != StateJoined {
			return
		}

		if !c.allow() {
			continue
		}

		onMessage(raw)
	}
}

// writePump drains the send queue, framing each payload as its own text
// message, and pings the peer. A closed queue ends the session with a close
// frame.
func (c *Connection) writePump(k keepalive, onClose func(error)) {
	ticker := time.NewTicker(k.pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(k.writeWait)); err != nil {
				onClose(fmt.Errorf("%w: %w", chat.ErrTransportClosed, err))
				return
			}
			if !ok {
				c.writeCloseMessage()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn().Err(err).Msg("error writing message")
				}
				onClose(fmt.Errorf("%w: %w", chat.ErrTransportClosed, err))
				return
			}
		case <-ticker.C:
			if err := c.writePing(k); err != nil {
				onClose(fmt.Errorf("%w: %w", chat.ErrTransportClosed, err))
				return
			}
		}
	}
}

func (c *Connection) writeCloseMessage() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("error writing close message")
	}
}

// writePing sends a ping message to keep the connection alive
func (c *Connection) writePing(k keepalive) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(k.writeWait)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn().Err(err).Msg("error writing ping message")
		return err
	}
	return nil
}
