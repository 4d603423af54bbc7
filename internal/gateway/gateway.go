package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotur/roturbot/internal/agent"
	"github.com/rotur/roturbot/internal/bus"
	"github.com/rotur/roturbot/internal/channel"
	"github.com/rotur/roturbot/internal/config"
	"github.com/rotur/roturbot/internal/counting"
	"github.com/rotur/roturbot/internal/cron"
	"github.com/rotur/roturbot/internal/memory"
	"github.com/rotur/roturbot/internal/rotur"
	"github.com/rotur/roturbot/internal/sandbox"
	"github.com/rotur/roturbot/internal/skills"
	"github.com/rotur/roturbot/internal/tools"
)

const (
	placeholderText = "Thinking..."
	failureText     = "Sorry, I hit an error handling that. Try again in a bit."

	contextWindow = 20
	memoryLimit   = 5
	cacheSize     = 200
)

const defaultPersona = "You are roturbot, the helper bot of the Rotur Discord server. " +
	"Be concise, friendly and a little playful. Use the available tools when " +
	"they help; if a message needs no reply, use silent_exit."

// Options for creating a Gateway. The factories exist so tests can inject
// fakes; nil fields fall back to the real implementations.
type Options struct {
	SessionFactory channel.SessionFactory
	ChatClient     agent.ChatClient
	SignalChan     chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	channels   *channel.ChannelManager
	discord    *channel.DiscordChannel
	cache      *MessageCache
	registry   *tools.Registry
	chatClient agent.ChatClient
	persona    string

	countStore *counting.Store
	game       *counting.Game
	memStore   *memory.Store
	skillStore *skills.Store
	roturAPI   *rotur.Client
	cron       *cron.Service

	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		bus:        bus.NewMessageBus(config.DefaultBufSize),
		cache:      NewMessageCache(cacheSize),
		signalChan: opts.SignalChan,
	}

	if err := os.MkdirAll(cfg.Bot.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	g.roturAPI = rotur.NewClient(cfg.Rotur.BaseURL, cfg.Rotur.APIKey)
	g.memStore = memory.NewStore(cfg.Memory.Dir)
	g.skillStore = skills.NewStore(cfg.Skills.Dir)

	g.countStore = counting.NewStore(cfg.Counting.StatePath)
	if err := g.countStore.Load(); err != nil {
		return nil, fmt.Errorf("load counting state: %w", err)
	}

	factory := opts.SessionFactory
	var chMgr *channel.ChannelManager
	var err error
	if factory == nil {
		chMgr, err = channel.NewChannelManager(cfg.Discord, g.bus)
	} else {
		chMgr, err = channel.NewChannelManagerWithFactory(cfg.Discord, g.bus, factory)
	}
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr
	g.discord = chMgr.Discord()

	g.game = counting.NewGame(g.countStore, g.roturAPI, g.discord.Notifier())

	g.chatClient = opts.ChatClient
	if g.chatClient == nil {
		g.chatClient = agent.NewChatClient(cfg)
	}

	g.persona = g.loadPersona()
	g.registry = g.buildRegistry()

	cronPath := filepath.Join(cfg.Bot.DataDir, "cron", "jobs.json")
	g.cron = cron.NewService(cronPath)
	g.cron.OnJob = g.runJob

	return g, nil
}

// loadPersona reads the persona file from the data dir, falling back to the
// built-in one.
func (g *Gateway) loadPersona() string {
	data, err := os.ReadFile(filepath.Join(g.cfg.Bot.DataDir, "persona.md"))
	if err == nil && strings.TrimSpace(string(data)) != "" {
		return string(data)
	}
	return defaultPersona
}

func (g *Gateway) buildRegistry() *tools.Registry {
	r := tools.NewRegistry(g.cfg.Tools.MaxChars)

	r.Register(tools.NewTimeTools(time.Now)...)
	r.Register(tools.NewWebTools(tools.NewTavilyClient(g.cfg.Tools.TavilyAPIKey), nil)...)
	r.Register(tools.NewLoreTools(tools.NewWikiClient(g.cfg.Tools.WikiBaseURL, g.cfg.Tools.WikiToken))...)
	r.Register(tools.NewRoturTools(g.roturAPI)...)
	r.Register(tools.NewMemoryTools(g.memStore)...)
	r.Register(tools.NewSkillTools(g.skillStore)...)
	r.Register(tools.NewDiscordTools(g.cache, g.discord)...)
	r.Register(tools.NewExitTools(tools.NewTenorClient(g.cfg.Tools.TenorAPIKey))...)

	runner := sandbox.NewRunner(
		time.Duration(g.cfg.Sandbox.TimeoutSec)*time.Second,
		g.cfg.Sandbox.CPUSec,
		g.cfg.Sandbox.MemoryMB,
		g.cfg.Sandbox.OutputMax,
	)
	runner.Python = g.cfg.Sandbox.Python
	r.Register(tools.NewExecTool(runner))

	return r
}

func (g *Gateway) newLoop(onStatus func(string)) *agent.Loop {
	return &agent.Loop{
		Client:         g.chatClient,
		Registry:       g.registry,
		Model:          g.cfg.Model.Model,
		ReasoningModel: g.cfg.Model.ReasoningModel,
		MaxTokens:      g.cfg.Model.MaxTokens,
		Temperature:    float32(g.cfg.Model.Temperature),
		MaxRounds:      g.cfg.Model.MaxToolRounds,
		FallbackReply:  g.cfg.Bot.FallbackReply,
		OnStatus:       onStatus,
	}
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	if err := g.ensureInternalJobs(); err != nil {
		log.Printf("[gateway] ensure internal jobs warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running")

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	log.Printf("[gateway] shutdown complete")
	return nil
}

// processLoop routes inbound events. Counting-channel traffic is handled
// synchronously so transitions observe Discord's event order; agent
// conversations run in their own goroutines.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	switch msg.Kind {
	case bus.EventMessage:
		if !msg.IsBot {
			g.cache.Add(msg.ChannelID, tools.ContextMessage{
				MessageID:  msg.MessageID,
				AuthorID:   msg.SenderID,
				AuthorName: msg.SenderName,
				Content:    msg.Content,
				Timestamp:  msg.Timestamp,
			})
		}
		if msg.ChannelID == g.cfg.Counting.ChannelID {
			if !msg.IsBot {
				g.game.HandleMessage(msg.ChannelID, msg.MessageID, msg.SenderID, msg.SenderName, msg.Content)
			}
			return
		}
		if msg.MentionsBot && !msg.IsBot {
			log.Printf("[gateway] mention from %s: %s", msg.SenderName, truncate(msg.Content, 80))
			go g.handleAgentMessage(ctx, msg)
		}
	case bus.EventEdit:
		g.cache.UpdateContent(msg.ChannelID, msg.MessageID, msg.Content)
		if msg.ChannelID == g.cfg.Counting.ChannelID {
			g.game.HandleEdit(msg.ChannelID, msg.MessageID, msg.Content)
		}
	case bus.EventDelete:
		g.cache.Remove(msg.ChannelID, msg.MessageID)
		if msg.ChannelID == g.cfg.Counting.ChannelID {
			g.game.HandleDelete(msg.ChannelID, msg.MessageID)
		}
	}
}

// handleAgentMessage drives one mention through the agent loop, using a
// placeholder reply as the status surface. The placeholder becomes the final
// reply, or is deleted when the agent chooses silence.
func (g *Gateway) handleAgentMessage(ctx context.Context, msg bus.InboundMessage) {
	placeholderID, err := g.discord.ReplyTo(msg.ChannelID, msg.MessageID, placeholderText)
	if err != nil {
		log.Printf("[gateway] placeholder send failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	ctx = tools.WithInvocation(ctx, tools.Invocation{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.MessageID,
		UserID:    msg.SenderID,
	})

	loop := g.newLoop(func(status string) {
		if err := g.discord.EditMessage(msg.ChannelID, placeholderID, status); err != nil {
			log.Printf("[gateway] status edit failed: %v", err)
		}
	})

	transcript := agent.BuildTranscript(g.buildInput(ctx, msg))

	outcome, err := loop.Run(ctx, transcript, msg.Content)
	if err != nil {
		log.Printf("[gateway] agent error: %v", err)
		if err := g.discord.EditMessage(msg.ChannelID, placeholderID, failureText); err != nil {
			log.Printf("[gateway] failure edit failed: %v", err)
		}
		return
	}

	switch outcome.Kind {
	case agent.OutcomeSilent:
		if err := g.discord.DeleteMessage(msg.ChannelID, placeholderID); err != nil {
			log.Printf("[gateway] placeholder delete failed: %v", err)
		}
	default:
		if err := g.discord.EditMessage(msg.ChannelID, placeholderID, outcome.Text); err != nil {
			log.Printf("[gateway] reply edit failed: %v", err)
		}
	}
}

// buildInput gathers the transcript sections: user snapshot from Rotur,
// recent channel messages, relevant memories and matching skills. Every
// lookup is best effort; a failed one just leaves its section empty.
func (g *Gateway) buildInput(ctx context.Context, msg bus.InboundMessage) agent.BuildInput {
	in := agent.BuildInput{
		Persona:     g.persona,
		UserName:    msg.SenderName,
		Context:     g.cache.Recent(msg.ChannelID, contextWindow),
		UserMessage: msg.Content,
	}
	if msg.ReplyToContent != "" {
		in.UserMessage = fmt.Sprintf("(replying to: %s)\n%s", msg.ReplyToContent, msg.Content)
	}

	snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if resp, err := g.roturAPI.GetUserByDiscordID(snapCtx, msg.SenderID); err == nil && resp.OK() {
		var snapshot map[string]any
		if json.Unmarshal(resp.Body, &snapshot) == nil {
			in.UserSnapshot = agent.StripSensitive(snapshot)
		}
	}

	if msg.GuildID != "" {
		mems, err := g.memStore.Search(msg.GuildID, msg.Content, memory.SearchOptions{
			Limit:    memoryLimit,
			Semantic: true,
		})
		if err != nil {
			log.Printf("[gateway] memory search warning: %v", err)
		} else {
			in.Memories = mems
		}
	}

	matches, err := g.skillStore.Search(msg.Content)
	if err != nil {
		log.Printf("[gateway] skill search warning: %v", err)
	} else {
		in.Skills = matches
	}

	return in
}

// runJob executes one scheduled job.
func (g *Gateway) runJob(job cron.Job) (string, error) {
	switch job.Payload.Kind {
	case cron.PayloadMemoryCleanup:
		removed, err := g.memStore.CleanupExpired("")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("removed %d expired memories", removed), nil
	case cron.PayloadCountingSnapshot:
		channels := g.countStore.Channels()
		for _, id := range channels {
			if st := g.countStore.Snapshot(id); st != nil {
				log.Printf("[gateway] counting %s: count=%d highest=%d totals=%d resets=%d",
					id, st.CurrentCount, st.HighestCount, st.TotalCounts, st.Resets)
			}
		}
		return fmt.Sprintf("snapshotted %d channels", len(channels)), nil
	case cron.PayloadAnnounce:
		if job.Payload.ChannelID == "" || job.Payload.Message == "" {
			return "", fmt.Errorf("announce job needs a channel and a message")
		}
		g.bus.Outbound <- bus.OutboundMessage{
			Channel:   "discord",
			ChannelID: job.Payload.ChannelID,
			Content:   job.Payload.Message,
		}
		return "sent", nil
	default:
		return "", fmt.Errorf("unknown job payload kind %q", job.Payload.Kind)
	}
}

func (g *Gateway) ensureInternalJobs() error {
	if _, err := g.cron.EnsureJob("memory-cleanup-daily",
		cron.Schedule{Kind: cron.KindCron, Expr: "0 0 3 * * *"},
		cron.Payload{Kind: cron.PayloadMemoryCleanup},
	); err != nil {
		return err
	}
	if _, err := g.cron.EnsureJob("counting-snapshot-daily",
		cron.Schedule{Kind: cron.KindCron, Expr: "0 30 3 * * *"},
		cron.Payload{Kind: cron.PayloadCountingSnapshot},
	); err != nil {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
