package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel          = "meta/llama-3.3-70b-instruct"
	DefaultReasoningModel = "deepseek-ai/deepseek-r1"
	DefaultModelBaseURL   = "https://integrate.api.nvidia.com/v1"
	DefaultRoturBaseURL   = "https://social.rotur.dev"
	DefaultWikiBaseURL    = "https://wiki.rotur.dev/api.php"
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.6
	DefaultMaxToolRounds  = 10
	DefaultBufSize        = 100
	DefaultMaxToolChars   = 50000
	DefaultFallbackReply  = "I don't have a response for that."

	DefaultSandboxTimeoutSec = 3
	DefaultSandboxCPUSec     = 2
	DefaultSandboxMemoryMB   = 128
	DefaultSandboxOutputMax  = 10000

	DefaultMemoryTTLDays = 30.0
)

type Config struct {
	Bot      BotConfig      `json:"bot"`
	Discord  DiscordConfig  `json:"discord"`
	Model    ModelConfig    `json:"model"`
	Rotur    RoturConfig    `json:"rotur"`
	Tools    ToolsConfig    `json:"tools"`
	Counting CountingConfig `json:"counting"`
	Memory   MemoryConfig   `json:"memory"`
	Skills   SkillsConfig   `json:"skills"`
	Sandbox  SandboxConfig  `json:"sandbox"`
}

type BotConfig struct {
	DataDir       string `json:"dataDir"`
	FallbackReply string `json:"fallbackReply,omitempty"`
}

type DiscordConfig struct {
	Token     string   `json:"token"`
	GuildID   string   `json:"guildId"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type ModelConfig struct {
	APIKey         string  `json:"apiKey"`
	BaseURL        string  `json:"baseUrl,omitempty"`
	Model          string  `json:"model"`
	ReasoningModel string  `json:"reasoningModel,omitempty"`
	MaxTokens      int     `json:"maxTokens"`
	Temperature    float64 `json:"temperature"`
	MaxToolRounds  int     `json:"maxToolRounds"`
}

type RoturConfig struct {
	BaseURL string `json:"baseUrl,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

type ToolsConfig struct {
	TavilyAPIKey string `json:"tavilyApiKey,omitempty"`
	TenorAPIKey  string `json:"tenorApiKey,omitempty"`
	WikiBaseURL  string `json:"wikiBaseUrl,omitempty"`
	WikiToken    string `json:"wikiToken,omitempty"`
	MaxChars     int    `json:"maxChars,omitempty"`
}

type CountingConfig struct {
	ChannelID string `json:"channelId"`
	StatePath string `json:"statePath,omitempty"`
}

type MemoryConfig struct {
	Dir            string  `json:"dir,omitempty"`
	DefaultTTLDays float64 `json:"defaultTtlDays,omitempty"`
}

type SkillsConfig struct {
	Dir string `json:"dir,omitempty"`
}

type SandboxConfig struct {
	Python     string `json:"python,omitempty"`
	TimeoutSec int    `json:"timeoutSec,omitempty"`
	CPUSec     int    `json:"cpuSec,omitempty"`
	MemoryMB   int    `json:"memoryMb,omitempty"`
	OutputMax  int    `json:"outputMax,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".roturbot", "data")
	return &Config{
		Bot: BotConfig{
			DataDir:       dataDir,
			FallbackReply: DefaultFallbackReply,
		},
		Discord: DiscordConfig{},
		Model: ModelConfig{
			BaseURL:        DefaultModelBaseURL,
			Model:          DefaultModel,
			ReasoningModel: DefaultReasoningModel,
			MaxTokens:      DefaultMaxTokens,
			Temperature:    DefaultTemperature,
			MaxToolRounds:  DefaultMaxToolRounds,
		},
		Rotur: RoturConfig{
			BaseURL: DefaultRoturBaseURL,
		},
		Tools: ToolsConfig{
			WikiBaseURL: DefaultWikiBaseURL,
			MaxChars:    DefaultMaxToolChars,
		},
		Counting: CountingConfig{},
		Memory: MemoryConfig{
			DefaultTTLDays: DefaultMemoryTTLDays,
		},
		Skills: SkillsConfig{},
		Sandbox: SandboxConfig{
			Python:     "python3",
			TimeoutSec: DefaultSandboxTimeoutSec,
			CPUSec:     DefaultSandboxCPUSec,
			MemoryMB:   DefaultSandboxMemoryMB,
			OutputMax:  DefaultSandboxOutputMax,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".roturbot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if token := os.Getenv("ROTURBOT_DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if guild := os.Getenv("ROTURBOT_GUILD_ID"); guild != "" {
		cfg.Discord.GuildID = guild
	}
	if key := os.Getenv("ROTURBOT_NVIDIA_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}
	if key := os.Getenv("NVIDIA_API_KEY"); key != "" && cfg.Model.APIKey == "" {
		cfg.Model.APIKey = key
	}
	if url := os.Getenv("ROTURBOT_MODEL_BASE_URL"); url != "" {
		cfg.Model.BaseURL = url
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		cfg.Tools.TavilyAPIKey = key
	}
	if key := os.Getenv("TENOR_API_KEY"); key != "" {
		cfg.Tools.TenorAPIKey = key
	}
	if key := os.Getenv("ROTURBOT_WIKI_TOKEN"); key != "" {
		cfg.Tools.WikiToken = key
	}
	if key := os.Getenv("ROTURBOT_ROTUR_API_KEY"); key != "" {
		cfg.Rotur.APIKey = key
	}
	if ch := os.Getenv("ROTURBOT_COUNTING_CHANNEL"); ch != "" {
		cfg.Counting.ChannelID = ch
	}
	if dir := os.Getenv("ROTURBOT_DATA_DIR"); dir != "" {
		cfg.Bot.DataDir = dir
	}
	if rounds := os.Getenv("ROTURBOT_MAX_TOOL_ROUNDS"); rounds != "" {
		if parsed, err := strconv.Atoi(rounds); err == nil && parsed > 0 {
			cfg.Model.MaxToolRounds = parsed
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.DataDir == "" {
		cfg.Bot.DataDir = DefaultConfig().Bot.DataDir
	}
	if cfg.Bot.FallbackReply == "" {
		cfg.Bot.FallbackReply = DefaultFallbackReply
	}
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = DefaultModelBaseURL
	}
	if cfg.Model.Model == "" {
		cfg.Model.Model = DefaultModel
	}
	if cfg.Model.ReasoningModel == "" {
		cfg.Model.ReasoningModel = DefaultReasoningModel
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}
	if cfg.Model.MaxToolRounds <= 0 {
		cfg.Model.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Rotur.BaseURL == "" {
		cfg.Rotur.BaseURL = DefaultRoturBaseURL
	}
	if cfg.Tools.WikiBaseURL == "" {
		cfg.Tools.WikiBaseURL = DefaultWikiBaseURL
	}
	if cfg.Tools.MaxChars <= 0 {
		cfg.Tools.MaxChars = DefaultMaxToolChars
	}
	if cfg.Counting.StatePath == "" {
		cfg.Counting.StatePath = filepath.Join(cfg.Bot.DataDir, "counting.json")
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = filepath.Join(cfg.Bot.DataDir, "memory")
	}
	if cfg.Memory.DefaultTTLDays <= 0 {
		cfg.Memory.DefaultTTLDays = DefaultMemoryTTLDays
	}
	if cfg.Skills.Dir == "" {
		cfg.Skills.Dir = filepath.Join(cfg.Bot.DataDir, "skills")
	}
	if cfg.Sandbox.Python == "" {
		cfg.Sandbox.Python = "python3"
	}
	if cfg.Sandbox.TimeoutSec <= 0 {
		cfg.Sandbox.TimeoutSec = DefaultSandboxTimeoutSec
	}
	if cfg.Sandbox.CPUSec <= 0 {
		cfg.Sandbox.CPUSec = DefaultSandboxCPUSec
	}
	if cfg.Sandbox.MemoryMB <= 0 {
		cfg.Sandbox.MemoryMB = DefaultSandboxMemoryMB
	}
	if cfg.Sandbox.OutputMax <= 0 {
		cfg.Sandbox.OutputMax = DefaultSandboxOutputMax
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
