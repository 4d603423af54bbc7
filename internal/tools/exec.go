package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/rotur/roturbot/internal/sandbox"
)

// NewExecTool builds execute_python_code on top of the sandbox runner.
func NewExecTool(runner *sandbox.Runner) Tool {
	return &funcTool{
		name:        "execute_python_code",
		description: "Run a short python snippet in a locked-down sandbox. An expression returns its value; a script returns its `result` variable. No imports, files or network.",
		params: objSchema(map[string]jsonschema.Definition{
			"code": strProp("The python code to run."),
		}, "code"),
		describe: func(json.RawMessage) string {
			return "Running some code..."
		},
		execute: func(ctx context.Context, args json.RawMessage) Result {
			var in struct {
				Code string `json:"code"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return Errorf("bad arguments: %v", err)
			}
			if strings.TrimSpace(in.Code) == "" {
				return Errorf("code is required")
			}
			return JSON(runner.Run(ctx, in.Code))
		},
	}
}
