package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rotur/roturbot/internal/memory"
	"github.com/rotur/roturbot/internal/skills"
	"github.com/rotur/roturbot/internal/tools"
)

const toolInstructions = "You can call tools to look things up, remember facts, react to messages " +
	"and more. Call tools through the structured tool_calls mechanism only; never write tool " +
	"syntax in your reply text. When no reply is warranted, call silent_exit. When a GIF says it " +
	"better than words, call gif_exit."

// sensitiveKeySubstrings are stripped from user profile snapshots before
// they reach the model.
var sensitiveKeySubstrings = []string{
	"password", "token", "secret", "email", "api_key", "apikey", "auth", "session", "private",
}

// BuildInput collects everything one conversation's opening transcript needs.
type BuildInput struct {
	Persona      string
	UserName     string
	UserSnapshot map[string]any
	Context      []tools.ContextMessage
	Memories     []memory.Scored
	Skills       []skills.Match
	UserMessage  string
}

// BuildTranscript renders the system preamble and the user turn. Empty
// sections are omitted entirely rather than sent as blank messages.
func BuildTranscript(in BuildInput) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 8)
	system := func(content string) {
		if strings.TrimSpace(content) != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: content,
			})
		}
	}

	system(in.Persona)
	system(toolInstructions)
	system(renderSnapshot(in.UserName, in.UserSnapshot))
	system(renderContext(in.Context))
	system(renderMemories(in.Memories))
	system(renderSkills(in.Skills))

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: in.UserMessage,
	})
	return messages
}

func renderSnapshot(name string, snapshot map[string]any) string {
	if name == "" && len(snapshot) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You are talking to " + name + ".")
	clean := StripSensitive(snapshot)
	if len(clean) > 0 {
		data, err := json.Marshal(clean)
		if err == nil {
			b.WriteString(" Their profile: " + string(data))
		}
	}
	return b.String()
}

// StripSensitive removes credential-looking keys from a profile snapshot,
// recursing into nested objects.
func StripSensitive(snapshot map[string]any) map[string]any {
	if len(snapshot) == 0 {
		return nil
	}
	clean := make(map[string]any, len(snapshot))
outer:
	for key, value := range snapshot {
		lower := strings.ToLower(key)
		for _, marker := range sensitiveKeySubstrings {
			if strings.Contains(lower, marker) {
				continue outer
			}
		}
		if nested, ok := value.(map[string]any); ok {
			clean[key] = StripSensitive(nested)
			continue
		}
		clean[key] = value
	}
	return clean
}

func renderContext(msgs []tools.ContextMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent channel messages, oldest first:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("15:04"), m.AuthorName, m.Content)
	}
	return b.String()
}

func renderMemories(mems []memory.Scored) string {
	if len(mems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Things you remember about this server:\n")
	for _, m := range mems {
		fmt.Fprintf(&b, "- %s (importance %d)\n", m.Memory.Content, m.Memory.Importance)
	}
	return b.String()
}

func renderSkills(matches []skills.Match) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant skill notes:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "### %s\n%s\n", m.Skill.Name, m.Skill.Description)
		if m.Skill.Endpoints != "" {
			fmt.Fprintf(&b, "Endpoints:\n%s\n", m.Skill.Endpoints)
		}
		if m.Skill.Notes != "" {
			fmt.Fprintf(&b, "Notes:\n%s\n", m.Skill.Notes)
		}
	}
	return b.String()
}
