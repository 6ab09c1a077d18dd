// Package badgerstore persists room records and chat messages in BadgerDB.
//
// Keys:
//
//	room:{name}                      -> roomRecord JSON
//	msg:{room}:{unix_nano_19}:{uuid} -> chat.Record JSON
//
// The 19-digit zero padded timestamp keeps a room's messages in
// chronological order under a prefix scan; the uuid suffix keeps two
// messages in the same nanosecond apart.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

type roomRecord struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a chat.Store backed by BadgerDB.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) a database at path. An empty path opens an
// in-memory database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log: log})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return New(db, log), nil
}

// New wraps an already opened database.
func New(db *badger.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

func roomKey(name string) []byte {
	return []byte("room:" + name)
}

func messagePrefix(room string) []byte {
	return []byte("msg:" + room + ":")
}

func messageKey(rec chat.Record) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", rec.Room, rec.CreatedAt.UnixNano(), rec.ID))
}

// EnsureRoom writes the room record if it does not exist yet.
func (s *Store) EnsureRoom(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return ensureRoom(txn, name)
	})
}

func ensureRoom(txn *badger.Txn, name string) error {
	_, err := txn.Get(roomKey(name))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("lookup room %q: %w", name, err)
	}

	value, err := json.Marshal(roomRecord{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return txn.Set(roomKey(name), value)
}

// SaveMessage stores rec and records its room in the same transaction.
func (s *Store) SaveMessage(ctx context.Context, rec chat.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := ensureRoom(txn, rec.Room); err != nil {
			return err
		}
		return txn.Set(messageKey(rec), value)
	})
}

// HasRoom reports whether a record exists for name. HasRoom and Messages are
// inspection readers: the relay itself only writes.
func (s *Store) HasRoom(name string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(roomKey(name))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// Messages returns up to limit of the most recent messages of room, oldest
// first. A limit of zero or less returns every message.
func (s *Store) Messages(ctx context.Context, room string, limit int) ([]chat.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []chat.Record
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec chat.Record
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("decode message %q: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(records)
	return records, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(format, args...)
}
