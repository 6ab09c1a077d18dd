package chat

import (
	"encoding/json"
	"fmt"
)

// Client-visible notice texts.
const (
	TextAuthRequired   = "Authentication is required!"
	TextInvalidPayload = "Invalid JSON format or empty message."
	TextPersistFailed  = "Message could not be saved."
)

// Delivery is the payload pushed to room members for a broadcast message.
type Delivery struct {
	Message string `json:"message"`
	User    string `json:"user"`
}

// Notice is an informational payload sent to a single connection.
type Notice struct {
	Message string `json:"message"`
}

// ErrorNotice is an error payload sent to a single connection.
type ErrorNotice struct {
	Error string `json:"error"`
}

// ParseContent decodes an inbound payload. The payload must be a JSON object;
// its "message" field, when present and not null, must be a string. A nil
// result with a nil error means the object carried no message.
func ParseContent(raw []byte) (*string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrMalformedPayload)
	}

	field, ok := fields["message"]
	if !ok || string(field) == "null" {
		return nil, nil
	}

	var content string
	if err := json.Unmarshal(field, &content); err != nil {
		return nil, fmt.Errorf("%w: message is not a string", ErrMalformedPayload)
	}
	return &content, nil
}

// EncodeDelivery renders msg as seen by the other members of its room. The
// user field always names the sender.
func EncodeDelivery(msg Message) ([]byte, error) {
	return json.Marshal(Delivery{Message: msg.Text(), User: msg.Sender.DisplayName()})
}

// EncodeNotice renders an informational notice.
func EncodeNotice(text string) []byte {
	b, _ := json.Marshal(Notice{Message: text})
	return b
}

// EncodeError renders an error notice.
func EncodeError(text string) []byte {
	b, _ := json.Marshal(ErrorNotice{Error: text})
	return b
}
