// Package rotur is a thin client for the rotur social API: account linking
// lookups, profiles and posts. Every call returns the upstream status code
// and raw JSON body so callers can forward responses unchanged.
package rotur

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const maxResponseBytes = 1 << 20

// Response is one upstream reply. Body is the raw JSON (or an empty object
// when the upstream body was not readable).
type Response struct {
	Status int
	Body   json.RawMessage
}

// OK reports whether the status is a 2xx.
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetUserBy looks a user up by one profile field, e.g. ("username", "mist")
// or ("discord_id", "123"). Not-found comes back as a non-2xx Response, not
// an error; errors mean the call itself failed.
func (c *Client) GetUserBy(ctx context.Context, key, value string) (Response, error) {
	return c.get(ctx, "/get_user_by", url.Values{"key": {key}, "value": {value}})
}

// GetUserByDiscordID resolves a Discord account id to its linked rotur user.
func (c *Client) GetUserByDiscordID(ctx context.Context, discordID string) (Response, error) {
	return c.GetUserBy(ctx, "discord_id", discordID)
}

// GetUser fetches a profile by rotur username.
func (c *Client) GetUser(ctx context.Context, username string) (Response, error) {
	return c.GetUserBy(ctx, "username", username)
}

// GetPosts fetches a user's recent posts.
func (c *Client) GetPosts(ctx context.Context, username string, limit int) (Response, error) {
	q := url.Values{"username": {username}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, "/posts", q)
}

// SearchPosts searches post content across the network.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) (Response, error) {
	q := url.Values{"query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, "/search_posts", q)
}

// IsLinked reports whether a Discord account has a linked rotur account.
// Transport failures count as not linked; the counting gate fails closed.
func (c *Client) IsLinked(discordID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		return false
	}
	return resp.OK()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Response{}, fmt.Errorf("create rotur request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("rotur %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{Status: resp.StatusCode, Body: json.RawMessage(`{}`)}, nil
	}
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		body = []byte(fmt.Sprintf(`{"raw": %s}`, quoted))
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}
