package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Model.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Model.Model, DefaultModel)
	}
	if cfg.Model.BaseURL != DefaultModelBaseURL {
		t.Errorf("baseUrl = %q, want %q", cfg.Model.BaseURL, DefaultModelBaseURL)
	}
	if cfg.Model.MaxToolRounds != DefaultMaxToolRounds {
		t.Errorf("maxToolRounds = %d, want %d", cfg.Model.MaxToolRounds, DefaultMaxToolRounds)
	}
	if cfg.Tools.MaxChars != DefaultMaxToolChars {
		t.Errorf("maxChars = %d, want %d", cfg.Tools.MaxChars, DefaultMaxToolChars)
	}
	if cfg.Sandbox.TimeoutSec != DefaultSandboxTimeoutSec {
		t.Errorf("sandbox timeout = %d, want %d", cfg.Sandbox.TimeoutSec, DefaultSandboxTimeoutSec)
	}
	if cfg.Bot.DataDir == "" {
		t.Error("dataDir should not be empty")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("ROTURBOT_DISCORD_TOKEN", "")
	t.Setenv("ROTURBOT_NVIDIA_API_KEY", "")
	t.Setenv("NVIDIA_API_KEY", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("TENOR_API_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Model.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Model.Model)
	}
	if cfg.Counting.StatePath != filepath.Join(cfg.Bot.DataDir, "counting.json") {
		t.Errorf("counting state path = %q", cfg.Counting.StatePath)
	}
	if cfg.Memory.Dir != filepath.Join(cfg.Bot.DataDir, "memory") {
		t.Errorf("memory dir = %q", cfg.Memory.Dir)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("ROTURBOT_DISCORD_TOKEN", "")
	t.Setenv("ROTURBOT_COUNTING_CHANNEL", "")

	cfgDir := filepath.Join(tmpDir, ".roturbot")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}

	onDisk := map[string]any{
		"discord":  map[string]any{"token": "file-token", "guildId": "g1"},
		"counting": map[string]any{"channelId": "c42"},
		"model":    map[string]any{"model": "custom/model"},
	}
	data, _ := json.Marshal(onDisk)
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Discord.Token != "file-token" {
		t.Errorf("token = %q, want file-token", cfg.Discord.Token)
	}
	if cfg.Counting.ChannelID != "c42" {
		t.Errorf("counting channel = %q, want c42", cfg.Counting.ChannelID)
	}
	if cfg.Model.Model != "custom/model" {
		t.Errorf("model = %q, want custom/model", cfg.Model.Model)
	}
	// Unset fields fall back to defaults.
	if cfg.Model.BaseURL != DefaultModelBaseURL {
		t.Errorf("baseUrl = %q, want default", cfg.Model.BaseURL)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("ROTURBOT_DISCORD_TOKEN", "env-token")
	t.Setenv("ROTURBOT_COUNTING_CHANNEL", "999")
	t.Setenv("NVIDIA_API_KEY", "nv-key")
	t.Setenv("ROTURBOT_MAX_TOOL_ROUNDS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Discord.Token)
	}
	if cfg.Counting.ChannelID != "999" {
		t.Errorf("counting channel = %q, want 999", cfg.Counting.ChannelID)
	}
	if cfg.Model.APIKey != "nv-key" {
		t.Errorf("api key = %q, want nv-key", cfg.Model.APIKey)
	}
	if cfg.Model.MaxToolRounds != 5 {
		t.Errorf("maxToolRounds = %d, want 5", cfg.Model.MaxToolRounds)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("ROTURBOT_DISCORD_TOKEN", "")

	cfg := DefaultConfig()
	cfg.Discord.GuildID = "g77"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Discord.GuildID != "g77" {
		t.Errorf("guildId = %q, want g77", loaded.Discord.GuildID)
	}
}
