package channel

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rotur/roturbot/internal/bus"
	"github.com/rotur/roturbot/internal/config"
)

type ChannelManager struct {
	channels map[string]Channel
	discord  *DiscordChannel
	bus      *bus.MessageBus
}

func NewChannelManager(cfg config.DiscordConfig, b *bus.MessageBus) (*ChannelManager, error) {
	return NewChannelManagerWithFactory(cfg, b, defaultSessionFactory)
}

// NewChannelManagerWithFactory lets tests substitute the Discord session.
func NewChannelManagerWithFactory(cfg config.DiscordConfig, b *bus.MessageBus, factory SessionFactory) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	ch, err := NewDiscordChannelWithFactory(cfg, b, factory)
	if err != nil {
		return nil, fmt.Errorf("init discord channel: %w", err)
	}
	m.channels[ch.Name()] = ch
	m.discord = ch
	b.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[channel-mgr] send to %s failed: %v", ch.Name(), err)
		}
	})

	return m, nil
}

// Discord returns the Discord transport for callers that need the richer
// message surface (edits, reactions, timeouts).
func (m *ChannelManager) Discord() *DiscordChannel {
	return m.discord
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			log.Printf("[channel-mgr] starting %s", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
