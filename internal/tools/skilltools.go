package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/rotur/roturbot/internal/skills"
)

func skillPayload(sk *skills.Skill) map[string]any {
	return map[string]any{
		"name":           sk.Name,
		"description":    sk.Description,
		"keywords":       sk.Keywords,
		"authentication": sk.Authentication,
		"endpoints":      sk.Endpoints,
		"notes":          sk.Notes,
	}
}

// NewSkillTools builds the skill-document CRUD and search operations.
func NewSkillTools(store *skills.Store) []Tool {
	return []Tool{
		&funcTool{
			name:        "list_skills",
			description: "List every saved skill document with its name and description.",
			params:      objSchema(nil),
			describe: func(json.RawMessage) string {
				return "Listing skills..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				all, err := store.List()
				if err != nil {
					return Errorf("list skills: %v", err)
				}
				out := make([]map[string]any, 0, len(all))
				for _, sk := range all {
					out = append(out, map[string]any{
						"name":        sk.Name,
						"description": sk.Description,
						"keywords":    sk.Keywords,
					})
				}
				return JSON(map[string]any{"skills": out})
			},
		},
		&funcTool{
			name:        "search_skills",
			description: "Search skill documents by name, description or keyword.",
			params: objSchema(map[string]jsonschema.Definition{
				"query": strProp("The search query."),
			}, "query"),
			describe: func(args json.RawMessage) string {
				if q := argString(args, "query"); q != "" {
					return fmt.Sprintf("Searching skills for %q...", q)
				}
				return "Searching skills..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Query string `json:"query"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				matches, err := store.Search(in.Query)
				if err != nil {
					return Errorf("search skills: %v", err)
				}
				out := make([]map[string]any, 0, len(matches))
				for _, m := range matches {
					out = append(out, map[string]any{
						"name":        m.Skill.Name,
						"description": m.Skill.Description,
						"score":       m.Score,
					})
				}
				return JSON(map[string]any{"matches": out})
			},
		},
		&funcTool{
			name:        "read_skill",
			description: "Read a skill document in full by name.",
			params: objSchema(map[string]jsonschema.Definition{
				"name": strProp("The skill name."),
			}, "name"),
			describe: func(args json.RawMessage) string {
				if n := argString(args, "name"); n != "" {
					return "Reading the " + n + " skill..."
				}
				return "Reading a skill..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Name string `json:"name"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				sk, err := store.Read(in.Name)
				if err != nil {
					return Errorf("read skill: %v", err)
				}
				if sk == nil {
					return Errorf("no skill named %q", in.Name)
				}
				return JSON(skillPayload(sk))
			},
		},
		&funcTool{
			name:        "create_skill",
			description: "Create a new skill document recording how to use an API or service.",
			params: objSchema(map[string]jsonschema.Definition{
				"name":           strProp("Skill name as a slug, e.g. rotur-api."),
				"description":    strProp("One-line summary of what the skill covers."),
				"keywords":       strArrayProp("Search keywords."),
				"authentication": strProp("How to authenticate, if relevant."),
				"endpoints":      strProp("Endpoints and how to call them."),
				"notes":          strProp("Anything else worth knowing."),
			}, "name", "description"),
			describe: func(args json.RawMessage) string {
				if n := argString(args, "name"); n != "" {
					return "Creating the " + n + " skill..."
				}
				return "Creating a skill..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Name           string   `json:"name"`
					Description    string   `json:"description"`
					Keywords       []string `json:"keywords"`
					Authentication string   `json:"authentication"`
					Endpoints      string   `json:"endpoints"`
					Notes          string   `json:"notes"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Description) == "" {
					return Errorf("description is required")
				}
				sk, err := store.Create(skills.Skill{
					Name:           in.Name,
					Description:    in.Description,
					Keywords:       in.Keywords,
					Authentication: in.Authentication,
					Endpoints:      in.Endpoints,
					Notes:          in.Notes,
				})
				if err != nil {
					if errors.Is(err, skills.ErrExists) {
						return Errorf("skill %q already exists, use edit_skill", in.Name)
					}
					return Errorf("create skill: %v", err)
				}
				return JSON(map[string]any{"created": sk.Name})
			},
		},
		&funcTool{
			name:        "edit_skill",
			description: "Update fields of an existing skill document. Omitted fields keep their current value.",
			params: objSchema(map[string]jsonschema.Definition{
				"name":           strProp("The skill to edit."),
				"description":    strProp("New description."),
				"keywords":       strArrayProp("Replacement keyword list."),
				"authentication": strProp("New authentication section."),
				"endpoints":      strProp("New endpoints section."),
				"notes":          strProp("New notes section."),
			}, "name"),
			describe: func(args json.RawMessage) string {
				if n := argString(args, "name"); n != "" {
					return "Editing the " + n + " skill..."
				}
				return "Editing a skill..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Name           string   `json:"name"`
					Description    *string  `json:"description"`
					Keywords       []string `json:"keywords"`
					Authentication *string  `json:"authentication"`
					Endpoints      *string  `json:"endpoints"`
					Notes          *string  `json:"notes"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				sk, err := store.Edit(in.Name, skills.Update{
					Description:    in.Description,
					Keywords:       in.Keywords,
					Authentication: in.Authentication,
					Endpoints:      in.Endpoints,
					Notes:          in.Notes,
				})
				if err != nil {
					return Errorf("edit skill: %v", err)
				}
				if sk == nil {
					return Errorf("no skill named %q", in.Name)
				}
				return JSON(skillPayload(sk))
			},
		},
	}
}
