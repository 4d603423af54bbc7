package rotur

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, "test-key"), srv
}

func TestClient_GetUserBy(t *testing.T) {
	var gotPath, gotAuth string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"username":"mist","discord_id":"42"}`))
	})
	defer srv.Close()

	resp, err := c.GetUserBy(context.Background(), "username", "mist")
	if err != nil {
		t.Fatalf("GetUserBy error: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("status = %d", resp.Status)
	}
	if gotPath != "/get_user_by?key=username&value=mist" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}

	var user struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if user.Username != "mist" {
		t.Errorf("username = %q", user.Username)
	}
}

func TestClient_NotFoundIsResponseNotError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"user not found"}`))
	})
	defer srv.Close()

	resp, err := c.GetUserByDiscordID(context.Background(), "999")
	if err != nil {
		t.Fatalf("non-2xx should not be a transport error: %v", err)
	}
	if resp.OK() || resp.Status != 404 {
		t.Errorf("status = %d, want 404", resp.Status)
	}
}

func TestClient_NonJSONBodyIsWrapped(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gateway exploded"))
	})
	defer srv.Close()

	resp, err := c.GetUser(context.Background(), "mist")
	if err != nil {
		t.Fatal(err)
	}
	var wrapped struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(resp.Body, &wrapped); err != nil {
		t.Fatalf("wrapped body not JSON: %v", err)
	}
	if wrapped.Raw != "gateway exploded" {
		t.Errorf("raw = %q", wrapped.Raw)
	}
}

func TestClient_PostQueries(t *testing.T) {
	var paths []string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.Write([]byte(`{"posts":[]}`))
	})
	defer srv.Close()

	if _, err := c.GetPosts(context.Background(), "mist", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SearchPosts(context.Background(), "counting game", 5); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"/posts?limit=10&username=mist",
		"/search_posts?limit=5&query=counting+game",
	}
	for i, w := range want {
		if paths[i] != w {
			t.Errorf("call %d path = %q, want %q", i, paths[i], w)
		}
	}
}

func TestClient_IsLinked(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("value") == "42" {
			w.Write([]byte(`{"username":"mist"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not linked"}`))
	})
	defer srv.Close()

	if !c.IsLinked("42") {
		t.Error("linked account reported unlinked")
	}
	if c.IsLinked("7") {
		t.Error("unlinked account reported linked")
	}

	srv.Close()
	if c.IsLinked("42") {
		t.Error("transport failure should report unlinked")
	}
}
