package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/rotur/roturbot/internal/memory"
)

// NewMemoryTools builds save_memory, search_memories and update_memory. The
// guild is taken from the invocation context, never from the model.
func NewMemoryTools(store *memory.Store) []Tool {
	return []Tool{
		&funcTool{
			name:        "save_memory",
			description: "Save a fact about this server or its members so it can be recalled later. Use sparingly for things worth remembering.",
			params: objSchema(map[string]jsonschema.Definition{
				"content":    strProp("The fact to remember, phrased so it makes sense on its own."),
				"tags":       strArrayProp("Short lowercase topic tags."),
				"importance": intProp("1 (trivial) to 10 (critical), default 5."),
				"ttl_days":   numProp("Days until the memory expires, default 30."),
			}, "content"),
			describe: func(json.RawMessage) string {
				return "Saving a memory..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Content    string   `json:"content"`
					Tags       []string `json:"tags"`
					Importance int      `json:"importance"`
					TTLDays    float64  `json:"ttl_days"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Content) == "" {
					return Errorf("content is required")
				}
				if in.Importance == 0 {
					in.Importance = 5
				}
				if in.TTLDays == 0 {
					in.TTLDays = 30
				}
				inv := InvocationFrom(ctx)
				if inv.GuildID == "" {
					return Errorf("memories need a guild context")
				}
				mem, err := store.Save(inv.GuildID, in.Content, in.Tags, in.Importance, in.TTLDays, inv.MessageID)
				if err != nil {
					return Errorf("save memory: %v", err)
				}
				return JSON(map[string]any{
					"saved":      mem.ID,
					"importance": mem.Importance,
					"expires_at": mem.ExpiresAt,
				})
			},
		},
		&funcTool{
			name:        "search_memories",
			description: "Search saved memories for this server by content, optionally filtered by tags and importance.",
			params: objSchema(map[string]jsonschema.Definition{
				"query":          strProp("What to look for."),
				"tags":           strArrayProp("Only memories carrying at least one of these tags."),
				"min_importance": intProp("Minimum importance, default 1."),
				"limit":          intProp("Maximum results, default 5."),
				"semantic":       boolProp("Also run the similarity fallback when few direct matches exist."),
			}, "query"),
			describe: func(args json.RawMessage) string {
				if q := argString(args, "query"); q != "" {
					return fmt.Sprintf("Searching memories for %q...", q)
				}
				return "Searching memories..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Query         string   `json:"query"`
					Tags          []string `json:"tags"`
					MinImportance int      `json:"min_importance"`
					Limit         int      `json:"limit"`
					Semantic      bool     `json:"semantic"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				inv := InvocationFrom(ctx)
				if inv.GuildID == "" {
					return Errorf("memories need a guild context")
				}
				scored, err := store.Search(inv.GuildID, in.Query, memory.SearchOptions{
					Tags:          in.Tags,
					MinImportance: in.MinImportance,
					Limit:         in.Limit,
					Semantic:      in.Semantic,
				})
				if err != nil {
					return Errorf("search memories: %v", err)
				}
				out := make([]map[string]any, 0, len(scored))
				for _, s := range scored {
					out = append(out, map[string]any{
						"id":         s.Memory.ID,
						"content":    s.Memory.Content,
						"tags":       s.Memory.Tags,
						"importance": s.Memory.Importance,
						"score":      s.Score,
						"created_at": s.Memory.CreatedAt,
					})
				}
				return JSON(map[string]any{"memories": out})
			},
		},
		&funcTool{
			name:        "update_memory",
			description: "Delete a memory, extend its expiry, or raise its importance.",
			params: objSchema(map[string]jsonschema.Definition{
				"memory_id": strProp("The id of the memory to update."),
				"action":    {Type: jsonschema.String, Description: "What to do.", Enum: []string{"delete", "extend", "increase_importance"}},
				"ttl_days":  numProp("New lifetime in days, only for extend."),
			}, "memory_id", "action"),
			describe: func(json.RawMessage) string {
				return "Updating a memory..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					MemoryID string  `json:"memory_id"`
					Action   string  `json:"action"`
					TTLDays  float64 `json:"ttl_days"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.MemoryID == "" || in.Action == "" {
					return Errorf("memory_id and action are required")
				}
				inv := InvocationFrom(ctx)
				if inv.GuildID == "" {
					return Errorf("memories need a guild context")
				}
				mem, err := store.Update(inv.GuildID, in.MemoryID, in.Action, in.TTLDays)
				if err != nil {
					return Errorf("update memory: %v", err)
				}
				if mem == nil {
					return Errorf("no memory with id %s", in.MemoryID)
				}
				return JSON(map[string]any{
					"id":         mem.ID,
					"action":     in.Action,
					"importance": mem.Importance,
					"expires_at": mem.ExpiresAt,
				})
			},
		},
	}
}
