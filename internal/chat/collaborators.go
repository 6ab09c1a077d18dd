//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_collaborators.go -package=mocks
package chat

import (
	"context"
	"net/http"
)

// Authenticator resolves and re-checks the identity behind a connection.
type Authenticator interface {
	// Authenticate inspects the upgrade request. The bool is false when the
	// request carries no valid credentials; the identity is then anonymous.
	Authenticate(r *http.Request) (Identity, bool)
	// IsAuthenticated reports whether id is still valid for sending.
	IsAuthenticated(id Identity) bool
}

// Persister stores chat messages.
type Persister interface {
	SaveMessage(ctx context.Context, rec Record) error
}

// RoomBook keeps durable room records. It is independent of the in-memory
// membership the relay uses for fan-out.
type RoomBook interface {
	EnsureRoom(ctx context.Context, name string) error
}

// Store is a storage backend that provides both capabilities.
type Store interface {
	Persister
	RoomBook
	Close() error
}
