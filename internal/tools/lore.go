package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// WikiClient talks to a MediaWiki api.php endpoint. Reads are anonymous;
// edits authenticate with an OAuth bearer token when one is configured.
type WikiClient struct {
	APIURL     string
	Token      string
	HTTPClient *http.Client
}

func NewWikiClient(apiURL, token string) *WikiClient {
	return &WikiClient{
		APIURL:     apiURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *WikiClient) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	form.Set("format", "json")

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, c.APIURL, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.APIURL+"?"+form.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create wiki request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, webReadLimit))
	if err != nil {
		return nil, fmt.Errorf("read wiki response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wiki returned status %d", resp.StatusCode)
	}

	var apiErr struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != nil {
		return nil, fmt.Errorf("wiki error %s: %s", apiErr.Error.Code, apiErr.Error.Info)
	}
	return data, nil
}

// Search runs a fulltext search and returns title/snippet pairs.
func (c *WikiClient) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	data, err := c.call(ctx, http.MethodGet, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse wiki search: %w", err)
	}
	out := make([]map[string]string, 0, len(parsed.Query.Search))
	for _, hit := range parsed.Query.Search {
		out = append(out, map[string]string{
			"title":   hit.Title,
			"snippet": stripTags(hit.Snippet),
		})
	}
	return json.Marshal(map[string]any{"results": out})
}

// GetPage fetches a page's wikitext.
func (c *WikiClient) GetPage(ctx context.Context, title string) (string, error) {
	data, err := c.call(ctx, http.MethodGet, url.Values{
		"action":        {"query"},
		"titles":        {title},
		"prop":          {"revisions"},
		"rvprop":        {"content"},
		"rvslots":       {"main"},
		"formatversion": {"2"},
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Missing   bool   `json:"missing"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse wiki page: %w", err)
	}
	if len(parsed.Query.Pages) == 0 || parsed.Query.Pages[0].Missing {
		return "", fmt.Errorf("page %q does not exist", title)
	}
	revs := parsed.Query.Pages[0].Revisions
	if len(revs) == 0 {
		return "", fmt.Errorf("page %q has no revisions", title)
	}
	return revs[0].Slots.Main.Content, nil
}

// EditPage replaces a page's content. It fetches a csrf token first, as the
// MediaWiki action API requires.
func (c *WikiClient) EditPage(ctx context.Context, title, content, summary string) error {
	data, err := c.call(ctx, http.MethodGet, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"csrf"},
	})
	if err != nil {
		return err
	}
	var tok struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := json.Unmarshal(data, &tok); err != nil || tok.Query.Tokens.CSRFToken == "" {
		return fmt.Errorf("wiki did not return an edit token")
	}

	data, err = c.call(ctx, http.MethodPost, url.Values{
		"action":  {"edit"},
		"title":   {title},
		"text":    {content},
		"summary": {summary},
		"token":   {tok.Query.Tokens.CSRFToken},
		"bot":     {"1"},
	})
	if err != nil {
		return err
	}
	var res struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("parse wiki edit result: %w", err)
	}
	if res.Edit.Result != "Success" {
		return fmt.Errorf("wiki edit failed: %s", res.Edit.Result)
	}
	return nil
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewLoreTools builds the wiki lookups and the edit operation.
func NewLoreTools(wiki *WikiClient) []Tool {
	return []Tool{
		&funcTool{
			name:        "search_lore",
			description: "Search the community lore wiki for pages matching a query.",
			params: objSchema(map[string]jsonschema.Definition{
				"query": strProp("The search query."),
				"limit": intProp("How many results, default 5."),
			}, "query"),
			describe: func(args json.RawMessage) string {
				if q := argString(args, "query"); q != "" {
					return fmt.Sprintf("Searching the lore for %q...", q)
				}
				return "Searching the lore..."
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
				data, err := wiki.Search(ctx, in.Query, in.Limit)
				if err != nil {
					return Errorf("%v", err)
				}
				return Text(string(data))
			},
		},
		&funcTool{
			name:        "get_lore_page",
			description: "Fetch the full wikitext of a lore wiki page by title.",
			params: objSchema(map[string]jsonschema.Definition{
				"title": strProp("Exact page title."),
			}, "title"),
			describe: func(args json.RawMessage) string {
				if t := argString(args, "title"); t != "" {
					return "Reading the lore page " + t + "..."
				}
				return "Reading a lore page..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Title string `json:"title"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.Title == "" {
					return Errorf("title is required")
				}
				content, err := wiki.GetPage(ctx, in.Title)
				if err != nil {
					return Errorf("%v", err)
				}
				return JSON(map[string]string{"title": in.Title, "content": content})
			},
		},
		&funcTool{
			name:        "edit_lore_page",
			description: "Replace the content of a lore wiki page. Use get_lore_page first and preserve what should stay.",
			params: objSchema(map[string]jsonschema.Definition{
				"title":   strProp("Exact page title."),
				"content": strProp("The full new wikitext for the page."),
				"summary": strProp("Short edit summary."),
			}, "title", "content"),
			describe: func(args json.RawMessage) string {
				if t := argString(args, "title"); t != "" {
					return "Editing the lore page " + t + "..."
				}
				return "Editing a lore page..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Title   string `json:"title"`
					Content string `json:"content"`
					Summary string `json:"summary"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				if in.Title == "" || in.Content == "" {
					return Errorf("title and content are required")
				}
				if err := wiki.EditPage(ctx, in.Title, in.Content, in.Summary); err != nil {
					return Errorf("%v", err)
				}
				return JSON(map[string]any{"edited": in.Title})
			},
		},
	}
}
