package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotur/roturbot/internal/config"
	"github.com/rotur/roturbot/internal/counting"
	"github.com/rotur/roturbot/internal/memory"
	"github.com/rotur/roturbot/internal/skills"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "not set"},
		{"short", "set"},
		{"sk-abcdefghijklmnop", "sk-a...mnop"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOrNone(t *testing.T) {
	if got := orNone(""); got != "not set" {
		t.Errorf("orNone(\"\") = %q", got)
	}
	if got := orNone("123"); got != "123" {
		t.Errorf("orNone(123) = %q", got)
	}
}

func TestRunOnboard_CreatesConfigAndDataDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ROTURBOT_DATA_DIR", "")

	var out bytes.Buffer
	if err := runOnboardTo(&out); err != nil {
		t.Fatalf("onboard: %v", err)
	}

	if _, err := os.Stat(config.ConfigPath()); err != nil {
		t.Errorf("config not created: %v", err)
	}
	if !strings.Contains(out.String(), "Created config:") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := runOnboardTo(&out); err != nil {
		t.Fatalf("second onboard: %v", err)
	}
	if !strings.Contains(out.String(), "Config already exists:") {
		t.Errorf("second output = %q", out.String())
	}
}

func TestStatus_SummarizesStores(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Bot.DataDir = dir
	cfg.Counting.ChannelID = "count"
	cfg.Counting.StatePath = filepath.Join(dir, "counting.json")
	cfg.Memory.Dir = filepath.Join(dir, "memory")
	cfg.Skills.Dir = filepath.Join(dir, "skills")

	countStore := counting.NewStore(cfg.Counting.StatePath)
	if err := countStore.Load(); err != nil {
		t.Fatalf("load counting: %v", err)
	}
	if err := countStore.Mutate("count", func(st *counting.ChannelState) {
		st.CurrentCount = 41
		st.HighestCount = 87
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	memStore := memory.NewStore(cfg.Memory.Dir)
	if _, err := memStore.Save("g1", "mist likes counting", []string{"trivia"}, 7, 30, ""); err != nil {
		t.Fatalf("save memory: %v", err)
	}

	skillStore := skills.NewStore(cfg.Skills.Dir)
	if _, err := skillStore.Create(skills.Skill{Name: "rotur-api", Description: "Talk to the Rotur API"}); err != nil {
		t.Fatalf("create skill: %v", err)
	}

	var out bytes.Buffer
	if err := statusTo(&out, cfg); err != nil {
		t.Fatalf("status: %v", err)
	}
	got := out.String()

	for _, want := range []string{
		"Counting channel: count",
		"Counting count: count=41 highest=87",
		"Memory g1: 1 memories, avg importance 7.0",
		"Skills: 1",
		"Discord token: not set",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q\n---\n%s", want, got)
		}
	}
}

func TestStatus_EmptyStores(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Bot.DataDir = dir
	cfg.Counting.StatePath = filepath.Join(dir, "counting.json")
	cfg.Memory.Dir = filepath.Join(dir, "memory")
	cfg.Skills.Dir = filepath.Join(dir, "skills")

	var out bytes.Buffer
	if err := statusTo(&out, cfg); err != nil {
		t.Fatalf("status: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Memory: empty") {
		t.Errorf("output = %q", got)
	}
	if !strings.Contains(got, "Skills: 0") {
		t.Errorf("output = %q", got)
	}
	if !strings.Contains(got, "Counting channel: not set") {
		t.Errorf("output = %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"gateway", "onboard", "status"} {
		if !names[want] {
			t.Errorf("command %q not registered", want)
		}
	}
}
