package chat

import "errors"

var (
	// ErrMalformedPayload is returned when an inbound payload is not a JSON
	// object with an optional string "message" field.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnauthenticated is returned when a sender has no valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPersistence wraps failures reported by the Persister.
	ErrPersistence = errors.New("persistence failure")
	// ErrDeadRecipient is returned when a connection can no longer accept
	// deliveries because it is closed or its send buffer is full.
	ErrDeadRecipient = errors.New("dead recipient")
	// ErrTransportClosed marks a session ended by the underlying socket.
	ErrTransportClosed = errors.New("transport closed")
	// ErrAlreadyJoined is returned when a connection joins a second room
	// without leaving the first.
	ErrAlreadyJoined = errors.New("connection already joined to another room")
)
