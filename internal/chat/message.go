// Package chat holds the domain types shared by the relay core and its
// collaborators: identities, messages, persisted records and the
// capabilities the core calls into for authentication and storage.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// AnonymousName is used as the sender name when a session has no identity.
const AnonymousName = "anonymous"

// Identity is who a connection claims to be. The zero value is anonymous.
type Identity struct {
	Name      string
	ExpiresAt time.Time
}

// Anonymous reports whether the identity carries no user name.
func (i Identity) Anonymous() bool {
	return i.Name == ""
}

// DisplayName returns the name rendered in delivered payloads.
func (i Identity) DisplayName() string {
	if i.Anonymous() {
		return AnonymousName
	}
	return i.Name
}

// Message is one inbound payload after it has been received by a session.
// It is transient: built on receipt, handed to the dispatcher, then dropped.
type Message struct {
	Raw     []byte
	Content *string // nil when the payload had no message field
	Room    string
	Sender  Identity
}

// Text returns the parsed content or the empty string.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Record is the durable form of a message handed to a Persister.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Room      string    `json:"room"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord builds a Record for msg stored under the durable room name.
func NewRecord(room string, msg Message, at time.Time) Record {
	return Record{
		ID:        uuid.New(),
		Room:      room,
		Author:    msg.Sender.DisplayName(),
		Content:   msg.Text(),
		CreatedAt: at.UTC(),
	}
}
