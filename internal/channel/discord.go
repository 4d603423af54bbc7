package channel

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/rotur/roturbot/internal/bus"
	"github.com/rotur/roturbot/internal/config"
	"github.com/rotur/roturbot/internal/counting"
	"github.com/rotur/roturbot/internal/tools"
)

const discordChannelName = "discord"

// DiscordSession is the slice of discordgo the channel uses (allows mocking
// in tests).
type DiscordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	Me() *discordgo.User
	ChannelMessageSend(channelID, content string) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string) error
	ChannelMessage(channelID, messageID string) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emoji string) error
	UserChannelCreate(recipientID string) (*discordgo.Channel, error)
	GuildMemberTimeout(guildID, userID string, until *time.Time, reason string) error
	UserGuildPermissions(userID, guildID string) (int64, error)
}

// sessionWrapper adapts *discordgo.Session to DiscordSession.
type sessionWrapper struct {
	s *discordgo.Session
}

func (w *sessionWrapper) Open() error  { return w.s.Open() }
func (w *sessionWrapper) Close() error { return w.s.Close() }
func (w *sessionWrapper) AddHandler(handler interface{}) func() {
	return w.s.AddHandler(handler)
}
func (w *sessionWrapper) Me() *discordgo.User { return w.s.State.User }
func (w *sessionWrapper) ChannelMessageSend(channelID, content string) (*discordgo.Message, error) {
	return w.s.ChannelMessageSend(channelID, content)
}
func (w *sessionWrapper) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference) (*discordgo.Message, error) {
	return w.s.ChannelMessageSendReply(channelID, content, ref)
}
func (w *sessionWrapper) ChannelMessageEdit(channelID, messageID, content string) (*discordgo.Message, error) {
	return w.s.ChannelMessageEdit(channelID, messageID, content)
}
func (w *sessionWrapper) ChannelMessageDelete(channelID, messageID string) error {
	return w.s.ChannelMessageDelete(channelID, messageID)
}
func (w *sessionWrapper) ChannelMessage(channelID, messageID string) (*discordgo.Message, error) {
	return w.s.ChannelMessage(channelID, messageID)
}
func (w *sessionWrapper) MessageReactionAdd(channelID, messageID, emoji string) error {
	return w.s.MessageReactionAdd(channelID, messageID, emoji)
}
func (w *sessionWrapper) UserChannelCreate(recipientID string) (*discordgo.Channel, error) {
	return w.s.UserChannelCreate(recipientID)
}
func (w *sessionWrapper) GuildMemberTimeout(guildID, userID string, until *time.Time, reason string) error {
	if reason != "" {
		return w.s.GuildMemberTimeout(guildID, userID, until, discordgo.WithAuditLogReason(reason))
	}
	return w.s.GuildMemberTimeout(guildID, userID, until)
}
func (w *sessionWrapper) UserGuildPermissions(userID, guildID string) (int64, error) {
	member, err := w.s.State.Member(guildID, userID)
	if err != nil || member == nil {
		member, err = w.s.GuildMember(guildID, userID)
		if err != nil {
			return 0, err
		}
	}
	guild, err := w.s.State.Guild(guildID)
	if err != nil {
		guild, err = w.s.Guild(guildID)
		if err != nil {
			return 0, err
		}
	}
	if guild.OwnerID == userID {
		return discordgo.PermissionAll, nil
	}
	var perms int64
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				perms |= role.Permissions
			}
		}
	}
	return perms, nil
}

// SessionFactory creates DiscordSession instances (allows mocking).
type SessionFactory func(token string) (DiscordSession, error)

var defaultSessionFactory SessionFactory = func(token string) (DiscordSession, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	// Counting depends on event order, so handlers must not race.
	s.SyncEvents = true
	return &sessionWrapper{s: s}, nil
}

type DiscordChannel struct {
	BaseChannel
	token   string
	session DiscordSession
	factory SessionFactory
	botID   string
	cancel  context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus) (*DiscordChannel, error) {
	return NewDiscordChannelWithFactory(cfg, b, defaultSessionFactory)
}

// NewDiscordChannelWithFactory creates a DiscordChannel with a custom
// session factory (for testing).
func NewDiscordChannelWithFactory(cfg config.DiscordConfig, b *bus.MessageBus, factory SessionFactory) (*DiscordChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	return &DiscordChannel{
		BaseChannel: NewBaseChannel(discordChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		factory:     factory,
	}, nil
}

func (d *DiscordChannel) Start(ctx context.Context) error {
	session, err := d.factory(d.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	d.session = session

	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onMessageUpdate)
	session.AddHandler(d.onMessageDelete)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if me := session.Me(); me != nil {
		d.botID = me.ID
		log.Printf("[discord] logged in as %s", me.Username)
	}

	ctx, d.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		_ = d.Stop()
	}()
	return nil
}

func (d *DiscordChannel) Stop() error {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

func (d *DiscordChannel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	if !d.IsAllowed(m.Author.ID) {
		log.Printf("[discord] dropping message from disallowed sender %s", m.Author.ID)
		return
	}
	msg := bus.InboundMessage{
		Kind:        bus.EventMessage,
		Channel:     discordChannelName,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		Content:     m.Content,
		Timestamp:   m.Timestamp,
		IsBot:       m.Author.Bot,
		MentionsBot: d.mentionsBot(m.Message),
	}
	if ref := m.ReferencedMessage; ref != nil {
		msg.ReplyToID = ref.ID
		msg.ReplyToContent = ref.Content
	}
	d.Publish(msg)
}

func (d *DiscordChannel) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	// Embed unfurls arrive as content-less updates; nothing to reconcile.
	if m.Author == nil && m.Content == "" {
		return
	}
	msg := bus.InboundMessage{
		Kind:      bus.EventEdit,
		Channel:   discordChannelName,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.SenderID = m.Author.ID
		msg.SenderName = m.Author.Username
		msg.IsBot = m.Author.Bot
	}
	d.Publish(msg)
}

func (d *DiscordChannel) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	d.Publish(bus.InboundMessage{
		Kind:      bus.EventDelete,
		Channel:   discordChannelName,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	})
}

func (d *DiscordChannel) mentionsBot(m *discordgo.Message) bool {
	if d.botID == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u.ID == d.botID {
			return true
		}
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == d.botID {
		return true
	}
	return strings.Contains(m.Content, "<@"+d.botID+">")
}

// Send implements the outbound half of Channel.
func (d *DiscordChannel) Send(msg bus.OutboundMessage) error {
	if msg.ReplyToID != "" {
		_, err := d.session.ChannelMessageSendReply(msg.ChannelID, msg.Content, &discordgo.MessageReference{
			MessageID: msg.ReplyToID,
			ChannelID: msg.ChannelID,
		})
		return err
	}
	_, err := d.session.ChannelMessageSend(msg.ChannelID, msg.Content)
	return err
}

// SendMessage posts and returns the new message id.
func (d *DiscordChannel) SendMessage(channelID, content string) (string, error) {
	m, err := d.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// ReplyTo posts a reply to a specific message and returns the new id.
func (d *DiscordChannel) ReplyTo(channelID, messageID, content string) (string, error) {
	m, err := d.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (d *DiscordChannel) EditMessage(channelID, messageID, content string) error {
	_, err := d.session.ChannelMessageEdit(channelID, messageID, content)
	return err
}

func (d *DiscordChannel) DeleteMessage(channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID)
}

// React adds one emoji to a message. Satisfies the counting notifier.
func (d *DiscordChannel) React(channelID, messageID, emoji string) error {
	return d.session.MessageReactionAdd(channelID, messageID, emoji)
}

// DirectMessage opens (or reuses) a DM channel and sends content there.
func (d *DiscordChannel) DirectMessage(userID, content string) error {
	dm, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	_, err = d.session.ChannelMessageSend(dm.ID, content)
	return err
}

// AddReaction satisfies the moderation tool surface.
func (d *DiscordChannel) AddReaction(channelID, messageID, emoji string) error {
	return d.session.MessageReactionAdd(channelID, messageID, emoji)
}

func (d *DiscordChannel) MessageReactions(channelID, messageID string) ([]tools.ReactionCount, error) {
	m, err := d.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, err
	}
	counts := make([]tools.ReactionCount, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		counts = append(counts, tools.ReactionCount{Emoji: r.Emoji.Name, Count: r.Count})
	}
	return counts, nil
}

func (d *DiscordChannel) TimeoutMember(guildID, userID string, duration time.Duration, reason string) error {
	until := time.Now().Add(duration)
	return d.session.GuildMemberTimeout(guildID, userID, &until, reason)
}

func (d *DiscordChannel) IsAdministrator(guildID, userID string) (bool, error) {
	perms, err := d.session.UserGuildPermissions(userID, guildID)
	if err != nil {
		return false, err
	}
	return perms&discordgo.PermissionAdministrator != 0, nil
}

// BotID returns the logged-in bot's user id, empty before Start.
func (d *DiscordChannel) BotID() string { return d.botID }

// notifier narrows the channel to plain send/react/dm calls. The counting
// game wants Send(channelID, content) which collides with the transport's
// Send(OutboundMessage).
type notifier struct {
	*DiscordChannel
}

func (n notifier) Send(channelID, content string) error {
	_, err := n.SendMessage(channelID, content)
	return err
}

func (d *DiscordChannel) Notifier() counting.Notifier { return notifier{d} }
