package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

const webReadLimit = 1 << 20

// TavilyClient wraps the Tavily search API. An empty API key keeps the tools
// registered but makes them report a configuration error.
type TavilyClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		APIKey:     apiKey,
		BaseURL:    "https://api.tavily.com",
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *TavilyClient) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("web search is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, webReadLimit))
	if err != nil {
		return nil, fmt.Errorf("read tavily response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tavily %s returned status %d", path, resp.StatusCode)
	}
	return data, nil
}

// NewWebTools builds search_web, extract_page and make_web_request.
func NewWebTools(tavily *TavilyClient, httpClient *http.Client) []Tool {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return []Tool{
		&funcTool{
			name:        "search_web",
			description: "Search the web and get back result titles, URLs and content snippets.",
			params: objSchema(map[string]jsonschema.Definition{
				"query":       strProp("The search query."),
				"max_results": intProp("How many results to return, default 5."),
			}, "query"),
			describe: func(args json.RawMessage) string {
				if q := argString(args, "query"); q != "" {
					return fmt.Sprintf("Searching the web for %q...", q)
				}
				return "Searching the web..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Query      string `json:"query"`
					MaxResults int    `json:"max_results"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if strings.TrimSpace(in.Query) == "" {
					return Errorf("query is required")
				}
				if in.MaxResults <= 0 || in.MaxResults > 10 {
					in.MaxResults = 5
				}
				data, err := tavily.post(ctx, "/search", map[string]any{
					"query":       in.Query,
					"max_results": in.MaxResults,
				})
				if err != nil {
					return Errorf("%v", err)
				}
				return Text(string(data))
			},
		},
		&funcTool{
			name:        "extract_page",
			description: "Fetch a web page and extract its readable content.",
			params: objSchema(map[string]jsonschema.Definition{
				"url": strProp("The page URL to extract."),
			}, "url"),
			describe: func(args json.RawMessage) string {
				if u := argString(args, "url"); u != "" {
					return "Reading " + u + "..."
				}
				return "Reading a page..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					URL string `json:"url"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.URL == "" {
					return Errorf("url is required")
				}
				data, err := tavily.post(ctx, "/extract", map[string]any{
					"urls": []string{in.URL},
				})
				if err != nil {
					return Errorf("%v", err)
				}
				return Text(string(data))
			},
		},
		&funcTool{
			name:        "make_web_request",
			description: "Make an arbitrary HTTP request with optional method, headers, query params and body. Returns status, headers and body.",
			params: objSchema(map[string]jsonschema.Definition{
				"url":     strProp("The request URL."),
				"method":  strProp("HTTP method, default GET."),
				"headers": {Type: jsonschema.Object, Description: "Request headers as a string-to-string object."},
				"params":  {Type: jsonschema.Object, Description: "Query parameters as a string-to-string object."},
				"body":    strProp("Raw request body."),
			}, "url"),
			describe: func(args json.RawMessage) string {
				if u := argString(args, "url"); u != "" {
					return "Calling " + u + "..."
				}
				return "Making a web request..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				return makeWebRequest(ctx, httpClient, args)
			},
		},
	}
}

func makeWebRequest(ctx context.Context, client *http.Client, args json.RawMessage) Result {
	var in struct {
		URL     string            `json:"url"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Params  map[string]string `json:"params"`
		Body    string            `json:"body"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return Errorf("bad arguments: %v", err)
	}
	if in.URL == "" {
		return Errorf("url is required")
	}

	target, err := url.Parse(in.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return Errorf("invalid url %q", in.URL)
	}
	if len(in.Params) > 0 {
		q := target.Query()
		for k, v := range in.Params {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if in.Body != "" {
		bodyReader = strings.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return Errorf("create request: %v", err)
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, webReadLimit))
	if err != nil {
		return Errorf("read response: %v", err)
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return JSON(map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(data),
	})
}
