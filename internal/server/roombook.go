package server

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// roomBook fronts the durable room records. Concurrent first joins to the
// same room share one EnsureRoom call and rooms already recorded are not
// looked up again.
type roomBook struct {
	book   chat.RoomBook
	prefix string
	group  singleflight.Group
	known  sync.Map
}

func newRoomBook(book chat.RoomBook, prefix string) *roomBook {
	return &roomBook{book: book, prefix: prefix}
}

// recordName maps a live room name to its durable record name.
func (b *roomBook) recordName(room string) string {
	return b.prefix + room
}

func (b *roomBook) ensure(ctx context.Context, room string) error {
	if b.book == nil {
		return nil
	}

	name := b.recordName(room)
	if _, ok := b.known.Load(name); ok {
		return nil
	}

	_, err, _ := b.group.Do(name, func() (any, error) {
		if err := b.book.EnsureRoom(ctx, name); err != nil {
			return nil, err
		}
		b.known.Store(name, struct{}{})
		return nil, nil
	})
	return err
}
