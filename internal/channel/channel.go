// Package channel connects the bot to chat transports. Discord is the only
// transport today; the interface keeps the gateway unaware of that.
package channel

import (
	"context"

	"github.com/rotur/roturbot/internal/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every transport shares.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	return BaseChannel{name: name, bus: b, allowFrom: allowFrom}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed reports whether a sender passes the allow list. An empty list
// allows everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	for _, id := range c.allowFrom {
		if id == senderID {
			return true
		}
	}
	return false
}

// Publish pushes an inbound event onto the bus. Delivery order matters to
// the counting game, so this blocks rather than drops when the bus is full.
func (c *BaseChannel) Publish(msg bus.InboundMessage) {
	c.bus.Inbound <- msg
}
