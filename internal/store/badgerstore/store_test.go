package badgerstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_EnsureRoom_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	found, err := s.HasRoom("chat_lobby")
	req.NoError(err)
	req.False(found)

	req.NoError(s.EnsureRoom(ctx, "chat_lobby"))
	req.NoError(s.EnsureRoom(ctx, "chat_lobby"))

	found, err = s.HasRoom("chat_lobby")
	req.NoError(err)
	req.True(found)
}

func TestStore_SaveMessage_SortedByTime(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []chat.Record{
		{ID: uuid.New(), Room: "chat_lobby", Author: "clara", Content: "third", CreatedAt: at.Add(2 * time.Minute)},
		{ID: uuid.New(), Room: "chat_lobby", Author: "alice", Content: "first", CreatedAt: at},
		{ID: uuid.New(), Room: "chat_lobby", Author: "bob", Content: "second", CreatedAt: at.Add(time.Minute)},
		{ID: uuid.New(), Room: "chat_other", Author: "dan", Content: "elsewhere", CreatedAt: at},
	}
	for _, rec := range records {
		req.NoError(s.SaveMessage(ctx, rec))
	}

	got, err := s.Messages(ctx, "chat_lobby", 0)
	req.NoError(err)
	req.Len(got, 3)
	req.Equal([]string{"first", "second", "third"}, contents(got))

	found, err := s.HasRoom("chat_other")
	req.NoError(err)
	req.True(found)
}

func TestStore_Messages_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		req.NoError(s.SaveMessage(ctx, chat.Record{
			ID:        uuid.New(),
			Room:      "chat_lobby",
			Author:    "alice",
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.Messages(ctx, "chat_lobby", 2)
	req.NoError(err)
	req.Equal([]string{"m3", "m4"}, contents(got))
}

func TestStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.EnsureRoom(ctx, "chat_busy"))

	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.SaveMessage(ctx, chat.Record{
				ID:        uuid.New(),
				Room:      "chat_busy",
				Content:   fmt.Sprintf("m%d", i),
				CreatedAt: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Messages(ctx, "chat_busy", 0)
	require.NoError(t, err)
	require.Len(t, got, 20)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := openTestStore(t)
	require.ErrorIs(t, s.SaveMessage(ctx, chat.Record{Room: "chat_lobby"}), context.Canceled)
}

func contents(records []chat.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Content)
	}
	return out
}
