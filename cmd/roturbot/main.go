package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rotur/roturbot/internal/config"
	"github.com/rotur/roturbot/internal/counting"
	"github.com/rotur/roturbot/internal/gateway"
	"github.com/rotur/roturbot/internal/memory"
	"github.com/rotur/roturbot/internal/skills"
)

var rootCmd = &cobra.Command{
	Use:   "roturbot",
	Short: "roturbot - the Rotur community Discord bot",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the full bot (Discord + counting game + agent + cron)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config file and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show roturbot status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Discord.Token == "" {
		return fmt.Errorf("Discord token not set. Run 'roturbot onboard' or set ROTURBOT_DISCORD_TOKEN")
	}
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("model API key not set. Set ROTURBOT_NVIDIA_API_KEY or edit %s", config.ConfigPath())
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	return runOnboardTo(cmd.OutOrStdout())
}

// runOnboardTo does the onboard work against an explicit writer so tests can
// capture the output.
func runOnboardTo(w io.Writer) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(w, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(w, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, dir := range []string{cfg.Bot.DataDir, cfg.Memory.Dir, cfg.Skills.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	fmt.Fprintf(w, "Data directory ready: %s\n", cfg.Bot.DataDir)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintf(w, "  1. Edit %s to set the Discord token and model API key\n", cfgPath)
	fmt.Fprintln(w, "  2. Or set ROTURBOT_DISCORD_TOKEN / ROTURBOT_NVIDIA_API_KEY")
	fmt.Fprintln(w, "  3. Run 'roturbot gateway'")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Config: error (%v)\n", err)
		return nil
	}
	return statusTo(cmd.OutOrStdout(), cfg)
}

func statusTo(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(w, "Data dir: %s\n", cfg.Bot.DataDir)
	fmt.Fprintf(w, "Model: %s (reasoning: %s)\n", cfg.Model.Model, cfg.Model.ReasoningModel)
	fmt.Fprintf(w, "Discord token: %s\n", maskSecret(cfg.Discord.Token))
	fmt.Fprintf(w, "Model API key: %s\n", maskSecret(cfg.Model.APIKey))
	fmt.Fprintf(w, "Counting channel: %s\n", orNone(cfg.Counting.ChannelID))

	countStore := counting.NewStore(cfg.Counting.StatePath)
	if err := countStore.Load(); err != nil {
		fmt.Fprintf(w, "Counting state: error (%v)\n", err)
	} else {
		for _, id := range countStore.Channels() {
			if st := countStore.Snapshot(id); st != nil {
				fmt.Fprintf(w, "Counting %s: count=%d highest=%d resets=%d\n",
					id, st.CurrentCount, st.HighestCount, st.Resets)
			}
		}
	}

	memStore := memory.NewStore(cfg.Memory.Dir)
	guilds, err := memStore.GuildIDs()
	if err != nil {
		fmt.Fprintf(w, "Memory: error (%v)\n", err)
	} else if len(guilds) == 0 {
		fmt.Fprintln(w, "Memory: empty")
	} else {
		for _, gid := range guilds {
			stats, err := memStore.Stats(gid)
			if err != nil {
				fmt.Fprintf(w, "Memory %s: error (%v)\n", gid, err)
				continue
			}
			fmt.Fprintf(w, "Memory %s: %d memories, avg importance %.1f\n",
				gid, stats.Total, stats.AverageImportance)
		}
	}

	skillStore := skills.NewStore(cfg.Skills.Dir)
	list, err := skillStore.List()
	if err != nil {
		fmt.Fprintf(w, "Skills: error (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Skills: %d\n", len(list))
	}

	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "not set"
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "set"
}

func orNone(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}
