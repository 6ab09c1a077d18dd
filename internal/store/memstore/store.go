// Package memstore keeps room records and chat messages in process memory.
// Nothing survives a restart; it backs tests and the default "memory" driver.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// Store is a concurrency-safe in-memory chat.Store.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string]struct{}
	messages map[string][]chat.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rooms:    make(map[string]struct{}),
		messages: make(map[string][]chat.Record),
	}
}

// EnsureRoom records name if it is not yet known.
func (s *Store) EnsureRoom(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[name] = struct{}{}
	return nil
}

// SaveMessage appends rec to its room, recording the room if needed.
func (s *Store) SaveMessage(ctx context.Context, rec chat.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[rec.Room] = struct{}{}
	s.messages[rec.Room] = append(s.messages[rec.Room], rec)
	return nil
}

// Messages returns the records saved for room in insertion order. The relay
// only writes; Messages and HasRoom exist for inspection by callers and tests.
func (s *Store) Messages(room string) []chat.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.messages[room])
}

// HasRoom reports whether name has been recorded.
func (s *Store) HasRoom(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[name]
	return ok
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
