// Package tools implements the named operations the model may call during a
// conversation. Tools never return Go errors across the dispatch boundary;
// every failure becomes a JSON error payload the model can read and react to.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// Kind tags the three possible tool outcomes.
type Kind int

const (
	// KindText is a normal JSON string result appended to the transcript.
	KindText Kind = iota
	// KindSilent tells the loop to stop with no visible reply.
	KindSilent
	// KindGif tells the loop to stop and post the payload verbatim.
	KindGif
)

// Result is what a tool execution produces.
type Result struct {
	Kind    Kind
	Payload string
}

func Text(payload string) Result { return Result{Kind: KindText, Payload: payload} }

func Silent() Result { return Result{Kind: KindSilent} }

func Gif(payload string) Result { return Result{Kind: KindGif, Payload: payload} }

// Errorf formats a structured error payload.
func Errorf(format string, args ...any) Result {
	data, _ := json.Marshal(map[string]string{"error": fmt.Sprintf(format, args...)})
	return Text(string(data))
}

// JSON marshals v into a text result, degrading to an error payload when the
// value cannot be encoded.
func JSON(v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Errorf("encode result: %v", err)
	}
	return Text(string(data))
}

// Tool is one named operation.
type Tool interface {
	Name() string
	Definition() openai.Tool
	// Describe renders a short human-readable status line from the raw
	// arguments, shown while the call is in flight.
	Describe(args json.RawMessage) string
	Execute(ctx context.Context, args json.RawMessage) Result
}

// Registry dispatches tool calls by name.
type Registry struct {
	maxChars int
	tools    map[string]Tool
}

func NewRegistry(maxChars int) *Registry {
	return &Registry{maxChars: maxChars, tools: make(map[string]Tool)}
}

func (r *Registry) Register(tools ...Tool) {
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; dup {
			log.Printf("[tools] warning: duplicate tool %q replaced", t.Name())
		}
		r.tools[t.Name()] = t
	}
}

// Definitions returns the full tool schema, sorted by name for a stable
// request body.
func (r *Registry) Definitions() []openai.Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Describe renders the in-flight status line for one call.
func (r *Registry) Describe(name string, args json.RawMessage) string {
	t, ok := r.tools[name]
	if !ok {
		return "Running " + name + "..."
	}
	return t.Describe(args)
}

// Execute runs one tool call. Unknown names, panics and oversized outputs
// are all normalized here so callers see only well-formed results.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[tools] panic in %s: %v", name, rec)
			res = Errorf("tool %s failed internally", name)
		}
	}()

	t, ok := r.tools[name]
	if !ok {
		return Errorf("unknown tool: %s", name)
	}

	res = t.Execute(ctx, args)
	if res.Kind == KindText && r.maxChars > 0 && len(res.Payload) > r.maxChars {
		res.Payload = res.Payload[:r.maxChars] +
			fmt.Sprintf("\n... (truncated, %d characters total)", len(res.Payload))
	}
	return res
}

// funcTool adapts a name, schema, describer and handler into a Tool. Most
// tools are plain functions and use this instead of a dedicated type.
type funcTool struct {
	name        string
	description string
	params      any
	describe    func(args json.RawMessage) string
	execute     func(ctx context.Context, args json.RawMessage) Result
}

func (f *funcTool) Name() string { return f.name }

func (f *funcTool) Definition() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        f.name,
			Description: f.description,
			Parameters:  f.params,
		},
	}
}

func (f *funcTool) Describe(args json.RawMessage) string {
	if f.describe == nil {
		return "Running " + f.name + "..."
	}
	return f.describe(args)
}

func (f *funcTool) Execute(ctx context.Context, args json.RawMessage) Result {
	return f.execute(ctx, args)
}

// decodeArgs parses the raw argument object. Tools treat malformed argument
// JSON as an empty object so optional-arg tools still run.
func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, dst)
}

// argString pulls one string field out of raw args for status lines.
func argString(args json.RawMessage, key string) string {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
