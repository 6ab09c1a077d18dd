package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseContent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *string
		wantErr bool
	}{
		{name: "plain message", raw: `{"message": "hi"}`, want: strPtr("hi")},
		{name: "extra fields ignored", raw: `{"message": "hi", "type": "chat"}`, want: strPtr("hi")},
		{name: "empty message", raw: `{"message": ""}`, want: strPtr("")},
		{name: "whitespace is content", raw: `{"message": "  "}`, want: strPtr("  ")},
		{name: "missing message", raw: `{"text": "hi"}`, want: nil},
		{name: "null message", raw: `{"message": null}`, want: nil},
		{name: "empty object", raw: `{}`, want: nil},
		{name: "empty body", raw: ``, wantErr: true},
		{name: "not json", raw: `hello`, wantErr: true},
		{name: "truncated", raw: `{"message": "hi"`, wantErr: true},
		{name: "json null", raw: `null`, wantErr: true},
		{name: "json array", raw: `["hi"]`, wantErr: true},
		{name: "json string", raw: `"hi"`, wantErr: true},
		{name: "numeric message", raw: `{"message": 42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := ParseContent([]byte(tt.raw))
			if tt.wantErr {
				req.ErrorIs(err, ErrMalformedPayload)
				req.Nil(got)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestEncodeDelivery_UsesSenderName(t *testing.T) {
	req := require.New(t)

	content := "hi"
	raw, err := EncodeDelivery(Message{Content: &content, Room: "lobby", Sender: Identity{Name: "A"}})
	req.NoError(err)
	req.JSONEq(`{"message": "hi", "user": "A"}`, string(raw))

	raw, err = EncodeDelivery(Message{Content: &content})
	req.NoError(err)

	var got Delivery
	req.NoError(json.Unmarshal(raw, &got))
	req.Equal(AnonymousName, got.User)
}

func TestEncodeNotices(t *testing.T) {
	req := require.New(t)
	req.JSONEq(`{"message": "Authentication is required!"}`, string(EncodeNotice(TextAuthRequired)))
	req.JSONEq(`{"error": "Invalid JSON format or empty message."}`, string(EncodeError(TextInvalidPayload)))
}

func strPtr(s string) *string {
	return &s
}
