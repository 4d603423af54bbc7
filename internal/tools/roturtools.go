package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/rotur/roturbot/internal/rotur"
)

func roturResult(resp rotur.Response, err error) Result {
	if err != nil {
		return Errorf("%v", err)
	}
	if !resp.OK() {
		return JSON(map[string]any{
			"error":  fmt.Sprintf("rotur returned status %d", resp.Status),
			"status": resp.Status,
			"body":   resp.Body,
		})
	}
	return Text(string(resp.Body))
}

// NewRoturTools builds the rotur account and post lookups.
func NewRoturTools(client *rotur.Client) []Tool {
	return []Tool{
		&funcTool{
			name:        "get_user",
			description: "Look up a rotur user's public profile by username.",
			params: objSchema(map[string]jsonschema.Definition{
				"username": strProp("The rotur username."),
			}, "username"),
			describe: func(args json.RawMessage) string {
				if u := argString(args, "username"); u != "" {
					return "Looking up " + u + "..."
				}
				return "Looking up a user..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Username string `json:"username"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Username) == "" {
					return Errorf("username is required")
				}
				return roturResult(client.GetUser(ctx, in.Username))
			},
		},
		&funcTool{
			name:        "get_rotur_user_by_discord_id",
			description: "Resolve a Discord user id to its linked rotur account, if any.",
			params: objSchema(map[string]jsonschema.Definition{
				"discord_id": strProp("The Discord user id."),
			}, "discord_id"),
			describe: func(json.RawMessage) string {
				return "Checking a linked account..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					DiscordID string `json:"discord_id"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.DiscordID == "" {
					return Errorf("discord_id is required")
				}
				return roturResult(client.GetUserByDiscordID(ctx, in.DiscordID))
			},
		},
		&funcTool{
			name:        "get_posts",
			description: "Fetch a rotur user's recent posts.",
			params: objSchema(map[string]jsonschema.Definition{
				"username": strProp("The rotur username."),
				"limit":    intProp("How many posts, default 10."),
			}, "username"),
			describe: func(args json.RawMessage) string {
				if u := argString(args, "username"); u != "" {
					return "Fetching posts by " + u + "..."
				}
				return "Fetching posts..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Username string `json:"username"`
					Limit    int    `json:"limit"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Username) == "" {
					return Errorf("username is required")
				}
				return roturResult(client.GetPosts(ctx, in.Username, in.Limit))
			},
		},
		&funcTool{
			name:        "search_posts",
			description: "Search rotur posts by content.",
			params: objSchema(map[string]jsonschema.Definition{
				"query": strProp("The search query."),
				"limit": intProp("How many posts, default 10."),
			}, "query"),
			describe: func(args json.RawMessage) string {
				if q := argString(args, "query"); q != "" {
					return fmt.Sprintf("Searching posts for %q...", q)
				}
				return "Searching posts..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Query string `json:"query"`
					Limit int    `json:"limit"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Query) == "" {
					return Errorf("query is required")
				}
				return roturResult(client.SearchPosts(ctx, in.Query, in.Limit))
			},
		},
	}
}
