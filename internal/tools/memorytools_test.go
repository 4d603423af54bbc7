package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rotur/roturbot/internal/memory"
)

func TestSaveAndSearchMemories(t *testing.T) {
	store := memory.NewStore(t.TempDir())
	list := NewMemoryTools(store)
	save := findTool(t, list, "save_memory")
	search := findTool(t, list, "search_memories")

	res := save.Execute(invCtx(), json.RawMessage(`{"content": "mist prefers tea", "tags": ["prefs"], "importance": 7}`))
	var saved struct {
		Saved string `json:"saved"`
	}
	if err := json.Unmarshal([]byte(res.Payload), &saved); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if saved.Saved == "" {
		t.Fatalf("save payload = %q", res.Payload)
	}

	res = search.Execute(invCtx(), json.RawMessage(`{"query": "mist prefers tea"}`))
	var found struct {
		Memories []struct {
			ID         string  `json:"id"`
			Content    string  `json:"content"`
			Importance int     `json:"importance"`
			Score      float64 `json:"score"`
		} `json:"memories"`
	}
	if err := json.Unmarshal([]byte(res.Payload), &found); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if len(found.Memories) != 1 || found.Memories[0].ID != saved.Saved {
		t.Fatalf("memories = %+v", found.Memories)
	}
	if found.Memories[0].Importance != 7 {
		t.Errorf("importance = %d", found.Memories[0].Importance)
	}
}

func TestMemoryTools_RequireGuild(t *testing.T) {
	list := NewMemoryTools(memory.NewStore(t.TempDir()))
	for _, name := range []string{"save_memory", "search_memories", "update_memory"} {
		tool := findTool(t, list, name)
		res := tool.Execute(context.Background(), json.RawMessage(`{"content": "x", "query": "x", "memory_id": "x", "action": "delete"}`))
		if !strings.Contains(res.Payload, "guild") {
			t.Errorf("%s without guild: payload = %q", name, res.Payload)
		}
	}
}

func TestUpdateMemory(t *testing.T) {
	store := memory.NewStore(t.TempDir())
	mem, err := store.Save("g1", "temp fact", nil, 5, 30, "")
	if err != nil {
		t.Fatal(err)
	}

	update := findTool(t, NewMemoryTools(store), "update_memory")
	args, _ := json.Marshal(map[string]any{"memory_id": mem.ID, "action": "increase_importance"})
	res := update.Execute(invCtx(), args)

	var out struct {
		Importance int `json:"importance"`
	}
	if err := json.Unmarshal([]byte(res.Payload), &out); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if out.Importance != 7 {
		t.Errorf("importance = %d, want 7", out.Importance)
	}

	res = update.Execute(invCtx(), json.RawMessage(`{"memory_id": "nope", "action": "delete"}`))
	if !strings.Contains(res.Payload, "no memory") {
		t.Errorf("payload = %q", res.Payload)
	}
}
