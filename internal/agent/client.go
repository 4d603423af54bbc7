// Package agent drives the tool-calling conversation loop: it builds the
// transcript, calls the model, executes requested tools in order and decides
// when the conversation is over.
package agent

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rotur/roturbot/internal/config"
)

// ChatClient is the slice of the OpenAI-compatible API the loop needs
// (allows mocking in tests).
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewChatClient builds a client for the configured OpenAI-compatible
// endpoint.
func NewChatClient(cfg *config.Config) ChatClient {
	clientCfg := openai.DefaultConfig(cfg.Model.APIKey)
	if cfg.Model.BaseURL != "" {
		clientCfg.BaseURL = cfg.Model.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
