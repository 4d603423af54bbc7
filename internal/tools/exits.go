package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// TenorClient wraps the Tenor GIF search API.
type TenorClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewTenorClient(apiKey string) *TenorClient {
	return &TenorClient{
		APIKey:     apiKey,
		BaseURL:    "https://tenor.googleapis.com/v2",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SearchGIF returns one GIF URL for a query, picked at random from the top
// results so repeated queries stay fresh.
func (c *TenorClient) SearchGIF(ctx context.Context, query string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("gif search is not configured")
	}
	q := url.Values{
		"q":            {query},
		"key":          {c.APIKey},
		"limit":        {"8"},
		"media_filter": {"gif"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create tenor request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tenor search: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, webReadLimit))
	if err != nil {
		return "", fmt.Errorf("read tenor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tenor returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			URL string `json:"url"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse tenor response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", fmt.Errorf("no gifs found for %q", query)
	}
	return parsed.Results[rand.Intn(len(parsed.Results))].URL, nil
}

// NewExitTools builds the two loop terminators.
func NewExitTools(tenor *TenorClient) []Tool {
	return []Tool{
		&funcTool{
			name:        "silent_exit",
			description: "End the conversation without replying. Use when no response is the right response.",
			params:      objSchema(nil),
			describe: func(json.RawMessage) string {
				return "Thinking..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				return Silent()
			},
		},
		&funcTool{
			name:        "gif_exit",
			description: "End the conversation by replying with a GIF matching the query instead of text.",
			params: objSchema(map[string]jsonschema.Definition{
				"query": strProp("What the GIF should show, e.g. thumbs up."),
			}, "query"),
			describe: func(args json.RawMessage) string {
				if q := argString(args, "query"); q != "" {
					return fmt.Sprintf("Finding a %q gif...", q)
				}
				return "Finding a gif..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Query string `json:"query"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Query) == "" {
					return Errorf("query is required")
				}
				gifURL, err := tenor.SearchGIF(ctx, in.Query)
				if err != nil {
					return Errorf("%v", err)
				}
				return Gif(gifURL)
			},
		},
	}
}
