package gateway

import (
	"sync"

	"github.com/rotur/roturbot/internal/tools"
)

// MessageCache keeps a bounded ring of recent messages per channel. It feeds
// the agent's channel-context section and the get_context tool.
type MessageCache struct {
	mu        sync.Mutex
	max       int
	byChannel map[string][]tools.ContextMessage
}

func NewMessageCache(max int) *MessageCache {
	if max <= 0 {
		max = 100
	}
	return &MessageCache{
		max:       max,
		byChannel: make(map[string][]tools.ContextMessage),
	}
}

func (c *MessageCache) Add(channelID string, msg tools.ContextMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := append(c.byChannel[channelID], msg)
	if len(msgs) > c.max {
		msgs = msgs[len(msgs)-c.max:]
	}
	c.byChannel[channelID] = msgs
}

// UpdateContent rewrites a cached message after an edit. Unknown ids are a
// no-op; the message may have aged out of the ring.
func (c *MessageCache) UpdateContent(channelID, messageID, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.byChannel[channelID]
	for i := range msgs {
		if msgs[i].MessageID == messageID {
			msgs[i].Content = content
			return
		}
	}
}

func (c *MessageCache) Remove(channelID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.byChannel[channelID]
	for i := range msgs {
		if msgs[i].MessageID == messageID {
			c.byChannel[channelID] = append(msgs[:i], msgs[i+1:]...)
			return
		}
	}
}

// Recent returns up to limit messages in chronological order, newest last.
func (c *MessageCache) Recent(channelID string, limit int) []tools.ContextMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.byChannel[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]tools.ContextMessage, len(msgs))
	copy(out, msgs)
	return out
}
