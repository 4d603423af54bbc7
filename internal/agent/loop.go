package agent

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rotur/roturbot/internal/tools"
)

const (
	// protocolRetryLimit bounds retries after the model emits tool-call
	// markup as literal text instead of structured calls.
	protocolRetryLimit = 3

	correctiveMessage = "Your previous reply contained tool-call markup as plain text. " +
		"Never write tool calls inline. Use only the structured tool_calls field, " +
		"or reply with plain text."
)

// inlineToolCallRe matches the XML-ish tool markup some models leak into
// their text output instead of using structured calls.
var inlineToolCallRe = regexp.MustCompile(`(?i)<\s*/?\s*(tool_call|tool|function|invoke|function_call)[\s>=]`)

// OutcomeKind tags how a conversation ended.
type OutcomeKind int

const (
	// OutcomeText is a normal text reply.
	OutcomeText OutcomeKind = iota
	// OutcomeSilent means post nothing and remove the placeholder.
	OutcomeSilent
	// OutcomeGif means post the payload verbatim.
	OutcomeGif
)

// Outcome is the terminal state of one conversation run.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

// Loop runs bounded tool-calling conversations against a ChatClient.
type Loop struct {
	Client         ChatClient
	Registry       *tools.Registry
	Model          string
	ReasoningModel string
	MaxTokens      int
	Temperature    float32
	MaxRounds      int
	FallbackReply  string

	// OnStatus receives human-readable progress lines ("Thinking...",
	// tool descriptions) for the placeholder message. Optional.
	OnStatus func(status string)
}

func (l *Loop) status(s string) {
	if l.OnStatus != nil {
		l.OnStatus(s)
	}
}

// Run drives one conversation to a terminal state. The transcript must end
// with the user message. Errors from the model are returned so the caller
// can log them and show a generic failure notice; the loop itself never
// panics past this boundary.
func (l *Loop) Run(ctx context.Context, transcript []openai.ChatCompletionMessage, userText string) (Outcome, error) {
	messages := make([]openai.ChatCompletionMessage, len(transcript))
	copy(messages, transcript)

	model := l.Model
	if classifyComplexity(userText) == complexityHard && l.ReasoningModel != "" {
		model = l.ReasoningModel
	}

	maxRounds := l.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 10
	}

	protocolRetries := 0
	for round := 0; round < maxRounds; round++ {
		l.status("Thinking...")

		resp, err := l.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Tools:       l.Registry.Definitions(),
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
		})
		if err != nil {
			return Outcome{}, err
		}
		if len(resp.Choices) == 0 {
			return l.finishText(""), nil
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 {
			if inlineToolCallRe.MatchString(msg.Content) && protocolRetries < protocolRetryLimit {
				protocolRetries++
				log.Printf("[agent] inline tool markup detected, retry %d/%d", protocolRetries, protocolRetryLimit)
				messages = append(messages,
					openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content},
					openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: correctiveMessage},
				)
				continue
			}
			return l.finishText(msg.Content), nil
		}

		// Echo the assistant turn with its calls verbatim, then answer
		// each call in order with a matching tool_call_id.
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			args := json.RawMessage(call.Function.Arguments)
			l.status(l.Registry.Describe(call.Function.Name, args))

			res := l.Registry.Execute(ctx, call.Function.Name, args)
			switch res.Kind {
			case tools.KindSilent:
				return Outcome{Kind: OutcomeSilent}, nil
			case tools.KindGif:
				return Outcome{Kind: OutcomeGif, Text: res.Payload}, nil
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    res.Payload,
			})
		}
	}

	log.Printf("[agent] conversation hit the %d-round ceiling", maxRounds)
	return l.finishText(""), nil
}

func (l *Loop) finishText(text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		text = l.FallbackReply
	}
	return Outcome{Kind: OutcomeText, Text: SanitizeMentions(text)}
}

// SanitizeMentions breaks @everyone and @here with a zero-width space so a
// reply can never ping the whole server.
func SanitizeMentions(text string) string {
	text = strings.ReplaceAll(text, "@everyone", "@​everyone")
	text = strings.ReplaceAll(text, "@here", "@​here")
	return text
}
