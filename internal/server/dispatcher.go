// Package server delivers room broadcasts through the Dispatcher type.
package server

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// DeadRecipientFunc is called for each member a broadcast could not reach.
type DeadRecipientFunc func(c *Connection, err error)

// Dispatcher fans a message out to the members of a room. Delivery is
// best-effort per recipient and never blocks: a recipient whose queue is
// closed or full is reported to the dead-recipient hook and skipped.
type Dispatcher struct {
	registry *Registry
	onDead   DeadRecipientFunc
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher reading membership from registry. When
// onDead is nil, dead recipients are removed from the registry and closed.
func NewDispatcher(registry *Registry, onDead DeadRecipientFunc, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		onDead:   onDead,
		log:      log,
	}
	if d.onDead == nil {
		d.onDead = d.dropRecipient
	}
	return d
}

// Broadcast delivers msg to every member of room except exclude (which may
// be nil) and returns the number of successful deliveries. Calls made in
// sequence reach each recipient's queue in the same sequence.
func (d *Dispatcher) Broadcast(room string, msg chat.Message, exclude *Connection) int {
	payload, err := chat.EncodeDelivery(msg)
	if err != nil {
		d.log.Error().Err(err).Str("room", room).Msg("failed to encode broadcast")
		return 0
	}

	targets := lo.Filter(d.registry.Members(room), func(c *Connection, _ int) bool {
		return c != exclude
	})

	d.log.Debug().Str("room", room).Int("targets", len(targets)).Msg("broadcasting message")

	delivered := 0
	for _, c := range targets {
		if err := c.deliver(payload); err != nil {
			d.log.Warn().Err(err).Str("room", room).Str("conn", c.id).Msg("delivery failed; dropping recipient")
			d.onDead(c, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Dispatcher) dropRecipient(c *Connection, _ error) {
	d.registry.Leave(c.room, c)
	c.shutdown()
}
