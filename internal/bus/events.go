package bus

import "time"

// EventKind distinguishes gateway events the core cares about.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventEdit    EventKind = "edit"
	EventDelete  EventKind = "delete"
)

type InboundMessage struct {
	Kind       EventKind
	Channel    string // transport name, e.g. "discord"
	GuildID    string
	ChannelID  string
	MessageID  string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
	ReplyToID  string
	// ReplyToContent carries the text of the message being replied to,
	// when the transport resolved it.
	ReplyToContent string
	MentionsBot    bool
	IsBot          bool
	Metadata       map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChannelID
}

type OutboundMessage struct {
	Channel   string
	ChannelID string
	Content   string
	ReplyToID string
	Metadata  map[string]any
}
