package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

func textMessage(room, user, text string) chat.Message {
	return chat.Message{Content: &text, Room: room, Sender: chat.Identity{Name: user}}
}

type deadRecorder struct {
	mu   sync.Mutex
	dead map[*Connection]error
}

func (d *deadRecorder) record(c *Connection, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dead == nil {
		d.dead = make(map[*Connection]error)
	}
	d.dead[c] = err
}

func TestDispatcher_BroadcastSkipsDeadRecipient(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	registry := NewRegistry(zerolog.Nop())
	dead := &deadRecorder{}
	d := NewDispatcher(registry, dead.record, zerolog.Nop())

	a := joinedConnection(t, registry, "lobby", "alice", cfg)
	b := joinedConnection(t, registry, "lobby", "bob", cfg)
	e := joinedConnection(t, registry, "lobby", "eve", cfg)
	e.shutdown()

	delivered := d.Broadcast("lobby", textMessage("lobby", "alice", "hi"), nil)
	req.Equal(2, delivered)

	want := `{"message":"hi","user":"alice"}`
	req.Equal([]string{want}, drain(a))
	req.Equal([]string{want}, drain(b))

	req.Len(dead.dead, 1)
	req.ErrorIs(dead.dead[e], chat.ErrDeadRecipient)
}

func TestDispatcher_BroadcastExcludesSender(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry(zerolog.Nop())
	d := NewDispatcher(registry, nil, zerolog.Nop())

	a := joinedConnection(t, registry, "lobby", "alice", cfg)
	b := joinedConnection(t, registry, "lobby", "bob", cfg)

	delivered := d.Broadcast("lobby", textMessage("lobby", "alice", "hi"), a)
	require.Equal(t, 1, delivered)
	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
}

func TestDispatcher_BroadcastOnlyReachesRoom(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry(zerolog.Nop())
	d := NewDispatcher(registry, nil, zerolog.Nop())

	a := joinedConnection(t, registry, "lobby", "alice", cfg)
	other := joinedConnection(t, registry, "games", "bob", cfg)

	require.Equal(t, 1, d.Broadcast("lobby", textMessage("lobby", "alice", "hi"), nil))
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(other))
	assert.Zero(t, d.Broadcast("empty", textMessage("empty", "alice", "hi"), nil))
}

func TestDispatcher_PreservesSenderOrder(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry(zerolog.Nop())
	d := NewDispatcher(registry, nil, zerolog.Nop())

	a := joinedConnection(t, registry, "lobby", "alice", cfg)
	b := joinedConnection(t, registry, "lobby", "bob", cfg)

	var want []string
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("m%d", i)
		d.Broadcast("lobby", textMessage("lobby", "alice", text), nil)
		want = append(want, fmt.Sprintf(`{"message":%q,"user":"alice"}`, text))
	}

	assert.Equal(t, want, drain(a))
	assert.Equal(t, want, drain(b))
}

func TestDispatcher_FullQueueIsDead(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	cfg.SendBufferSize = 1
	registry := NewRegistry(zerolog.Nop())
	dead := &deadRecorder{}
	d := NewDispatcher(registry, dead.record, zerolog.Nop())

	slow := joinedConnection(t, registry, "lobby", "slow", cfg)

	req.Equal(1, d.Broadcast("lobby", textMessage("lobby", "alice", "one"), nil))
	req.Equal(0, d.Broadcast("lobby", textMessage("lobby", "alice", "two"), nil))
	req.ErrorIs(dead.dead[slow], chat.ErrDeadRecipient)
}

func TestDispatcher_DefaultDropsDeadRecipient(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry(zerolog.Nop())
	d := NewDispatcher(registry, nil, zerolog.Nop())

	a := joinedConnection(t, registry, "lobby", "alice", cfg)
	e := joinedConnection(t, registry, "lobby", "eve", cfg)
	e.shutdown()

	d.Broadcast("lobby", textMessage("lobby", "alice", "hi"), nil)

	assert.Equal(t, []*Connection{a}, registry.Members("lobby"))
	assert.Equal(t, StateClosed, e.State())
}

func TestDispatcher_AnonymousSender(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry(zerolog.Nop())
	d := NewDispatcher(registry, nil, zerolog.Nop())
	a := joinedConnection(t, registry, "lobby", "alice", cfg)

	text := "hello"
	d.Broadcast("lobby", chat.Message{Content: &text, Room: "lobby"}, nil)
	assert.Equal(t, []string{`{"message":"hello","user":"anonymous"}`}, drain(a))
}
