package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

const maxTimeout = 10 * time.Minute

// ContextMessage is one cached channel message for the get_context tool.
type ContextMessage struct {
	MessageID  string    `json:"message_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// ContextProvider hands out recent messages for a channel, newest last.
type ContextProvider interface {
	Recent(channelID string, limit int) []ContextMessage
}

// ReactionCount is one emoji tally on a message.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Moderator is the slice of Discord the moderation tools need. The gateway
// wires the live session in; tests use a fake.
type Moderator interface {
	AddReaction(channelID, messageID, emoji string) error
	MessageReactions(channelID, messageID string) ([]ReactionCount, error)
	TimeoutMember(guildID, userID string, duration time.Duration, reason string) error
	IsAdministrator(guildID, userID string) (bool, error)
}

// NewDiscordTools builds get_context, add_reactions, get_message_reactions
// and timeout_user.
func NewDiscordTools(cache ContextProvider, mod Moderator) []Tool {
	return []Tool{
		&funcTool{
			name:        "get_context",
			description: "Get the most recent messages in the current channel.",
			params: objSchema(map[string]jsonschema.Definition{
				"limit": intProp("How many messages, default 20."),
			}),
			describe: func(json.RawMessage) string {
				return "Reading the channel..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Limit int `json:"limit"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.Limit <= 0 || in.Limit > 100 {
					in.Limit = 20
				}
				inv := InvocationFrom(ctx)
				if inv.ChannelID == "" {
					return Errorf("no channel context")
				}
				return JSON(map[string]any{"messages": cache.Recent(inv.ChannelID, in.Limit)})
			},
		},
		&funcTool{
			name:        "add_reactions",
			description: "Add emoji reactions to one or more messages in the current channel. Reports success or failure per message.",
			params: objSchema(map[string]jsonschema.Definition{
				"message_ids": strArrayProp("The message ids to react to."),
				"reactions":   strArrayProp("The emoji to add, in order."),
			}, "message_ids", "reactions"),
			describe: func(json.RawMessage) string {
				return "Adding reactions..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					MessageIDs []string `json:"message_ids"`
					Reactions  []string `json:"reactions"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if len(in.MessageIDs) == 0 || len(in.Reactions) == 0 {
					return Errorf("message_ids and reactions are required")
				}
				inv := InvocationFrom(ctx)
				if inv.ChannelID == "" {
					return Errorf("no channel context")
				}

				report := make(map[string]string, len(in.MessageIDs))
				for _, id := range in.MessageIDs {
					status := "ok"
					for _, emoji := range in.Reactions {
						if err := mod.AddReaction(inv.ChannelID, id, emoji); err != nil {
							status = fmt.Sprintf("failed: %v", err)
							break
						}
					}
					report[id] = status
				}
				return JSON(map[string]any{"results": report})
			},
		},
		&funcTool{
			name:        "get_message_reactions",
			description: "Get the emoji reaction counts on a message in the current channel.",
			params: objSchema(map[string]jsonschema.Definition{
				"message_id": strProp("The message id."),
			}, "message_id"),
			describe: func(json.RawMessage) string {
				return "Checking reactions..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					MessageID string `json:"message_id"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.MessageID == "" {
					return Errorf("message_id is required")
				}
				inv := InvocationFrom(ctx)
				if inv.ChannelID == "" {
					return Errorf("no channel context")
				}
				counts, err := mod.MessageReactions(inv.ChannelID, in.MessageID)
				if err != nil {
					return Errorf("get reactions: %v", err)
				}
				return JSON(map[string]any{"reactions": counts})
			},
		},
		&funcTool{
			name:        "timeout_user",
			description: "Time a member out for up to 10 minutes. Administrators cannot be timed out.",
			params: objSchema(map[string]jsonschema.Definition{
				"user_id":          strProp("The member to time out."),
				"duration_seconds": intProp("Timeout length in seconds, default 60, maximum 600."),
				"reason":           strProp("Why, shown in the audit log."),
			}, "user_id"),
			describe: func(json.RawMessage) string {
				return "Timing someone out..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					UserID          string `json:"user_id"`
					DurationSeconds int    `json:"duration_seconds"`
					Reason          string `json:"reason"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.UserID == "" {
					return Errorf("user_id is required")
				}
				inv := InvocationFrom(ctx)
				if inv.GuildID == "" {
					return Errorf("no guild context")
				}

				duration := time.Duration(in.DurationSeconds) * time.Second
				if duration <= 0 {
					duration = time.Minute
				}
				if duration > maxTimeout {
					duration = maxTimeout
				}

				admin, err := mod.IsAdministrator(inv.GuildID, in.UserID)
				if err != nil {
					return Errorf("check permissions: %v", err)
				}
				if admin {
					return Errorf("cannot time out an administrator")
				}
				if err := mod.TimeoutMember(inv.GuildID, in.UserID, duration, in.Reason); err != nil {
					return Errorf("timeout failed: %v", err)
				}
				return JSON(map[string]any{
					"timed_out":        in.UserID,
					"duration_seconds": int(duration.Seconds()),
				})
			},
		},
	}
}
