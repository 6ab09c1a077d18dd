// Package server keeps room membership for the relay via the Registry type.
package server

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// Registry maps room names to the connections currently joined to them.
// Rooms are created on first join and dropped when their last member leaves.
// The registry references connections; it never closes them.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Connection]struct{}
	joined map[*Connection]string
	log    zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Connection]struct{}),
		joined: make(map[*Connection]string),
		log:    log,
	}
}

// Join registers c under room, creating the room if needed. Joining the room
// c is already in is a no-op; joining a different one fails with
// chat.ErrAlreadyJoined.
func (r *Registry) Join(room string, c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.joined[c]; ok {
		if current == room {
			return nil
		}
		return fmt.Errorf("%w: %s is in %q", chat.ErrAlreadyJoined, c.id, current)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		r.rooms[room] = members
		r.log.Debug().Str("room", room).Msg("room created")
	}
	members[c] = struct{}{}
	r.joined[c] = room

	r.log.Info().
		Str("room", room).
		Str("conn", c.id).
		Int("members", len(members)).
		Msg("connection joined room")
	return nil
}

// Leave removes c from room. It reports whether c was a member.
func (r *Registry) Leave(room string, c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.joined[c]; !ok || current != room {
		return false
	}

	members := r.rooms[room]
	delete(members, c)
	delete(r.joined, c)

	remaining := len(members)
	if remaining == 0 {
		delete(r.rooms, room)
		r.log.Debug().Str("room", room).Msg("room removed")
	}

	r.log.Info().
		Str("room", room).
		Str("conn", c.id).
		Int("members", remaining).
		Msg("connection left room")
	return true
}

// Members returns a snapshot of the connections in room.
func (r *Registry) Members(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.rooms[room])
}

// RoomOf returns the room c is joined to.
func (r *Registry) RoomOf(c *Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.joined[c]
	return room, ok
}

// Rooms returns a snapshot of member counts keyed by room name.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapValues(r.rooms, func(members map[*Connection]struct{}, _ string) int {
		return len(members)
	})
}

// Connections returns a snapshot of every joined connection.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.joined)
}

// Len returns the number of joined connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.joined)
}
