package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rotur/roturbot/internal/bus"
	"github.com/rotur/roturbot/internal/channel"
	"github.com/rotur/roturbot/internal/config"
	"github.com/rotur/roturbot/internal/cron"
	"github.com/rotur/roturbot/internal/tools"
)

type fakeSession struct {
	mu        sync.Mutex
	opened    bool
	sent      []string // "channelID|content"
	replies   []string // "channelID|replyToID|content"
	edits     []string // "channelID|messageID|content"
	deletes   []string // "channelID|messageID"
	reactions []string // "channelID|messageID|emoji"
}

func (f *fakeSession) Open() error  { f.opened = true; return nil }
func (f *fakeSession) Close() error { return nil }
func (f *fakeSession) AddHandler(handler interface{}) func() {
	return func() {}
}
func (f *fakeSession) Me() *discordgo.User {
	return &discordgo.User{ID: "bot-1", Username: "roturbot"}
}
func (f *fakeSession) ChannelMessageSend(channelID, content string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+"|"+content)
	return &discordgo.Message{ID: fmt.Sprintf("s%d", len(f.sent))}, nil
}
func (f *fakeSession) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, channelID+"|"+ref.MessageID+"|"+content)
	return &discordgo.Message{ID: fmt.Sprintf("r%d", len(f.replies))}, nil
}
func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, channelID+"|"+messageID+"|"+content)
	return &discordgo.Message{ID: messageID}, nil
}
func (f *fakeSession) ChannelMessageDelete(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, channelID+"|"+messageID)
	return nil
}
func (f *fakeSession) ChannelMessage(channelID, messageID string) (*discordgo.Message, error) {
	return &discordgo.Message{ID: messageID}, nil
}
func (f *fakeSession) MessageReactionAdd(channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, channelID+"|"+messageID+"|"+emoji)
	return nil
}
func (f *fakeSession) UserChannelCreate(recipientID string) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}
func (f *fakeSession) GuildMemberTimeout(guildID, userID string, until *time.Time, reason string) error {
	return nil
}
func (f *fakeSession) UserGuildPermissions(userID, guildID string) (int64, error) {
	return 0, nil
}

func (f *fakeSession) snapshot(field *[]string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), *field...)
}

type scriptedChat struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	err       error
	requests  []openai.ChatCompletionRequest
}

func (s *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return openai.ChatCompletionResponse{}, fmt.Errorf("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func textResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: text,
			},
		}},
	}
}

func toolCallResponse(name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       "call-1",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
	}
}

// testConfig points every external endpoint at a stub so no test touches
// the network. roturURL of "" gets a default stub answering 404.
func testConfig(t *testing.T, roturURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Bot.DataDir = dir
	cfg.Discord.Token = "tok"
	cfg.Counting.ChannelID = "count"
	cfg.Counting.StatePath = filepath.Join(dir, "counting.json")
	cfg.Memory.Dir = filepath.Join(dir, "memory")
	cfg.Skills.Dir = filepath.Join(dir, "skills")
	if roturURL == "" {
		stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		}))
		t.Cleanup(stub.Close)
		roturURL = stub.URL
	}
	cfg.Rotur.BaseURL = roturURL
	cfg.Tools.WikiBaseURL = roturURL
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config, chat *scriptedChat) (*Gateway, *fakeSession) {
	t.Helper()
	fake := &fakeSession{}
	g, err := NewWithOptions(cfg, Options{
		SessionFactory: func(string) (channel.DiscordSession, error) { return fake, nil },
		ChatClient:     chat,
	})
	if err != nil {
		t.Fatalf("create gateway: %v", err)
	}
	if err := g.channels.StartAll(context.Background()); err != nil {
		t.Fatalf("start channels: %v", err)
	}
	t.Cleanup(func() { _ = g.channels.StopAll() })
	return g, fake
}

func inbound(channelID, messageID, senderID, content string, mentions bool) bus.InboundMessage {
	return bus.InboundMessage{
		Kind:        bus.EventMessage,
		Channel:     "discord",
		GuildID:     "g1",
		ChannelID:   channelID,
		MessageID:   messageID,
		SenderID:    senderID,
		SenderName:  "mist",
		Content:     content,
		Timestamp:   time.Now(),
		MentionsBot: mentions,
	}
}

func TestNewGateway_RegistersAllTools(t *testing.T) {
	cfg := testConfig(t, "")
	g, _ := newTestGateway(t, cfg, &scriptedChat{})

	defs := g.registry.Definitions()
	if len(defs) != 28 {
		t.Errorf("registered tools = %d, want 28", len(defs))
	}
	if _, err := os.Stat(cfg.Bot.DataDir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestCountingChannelRouted(t *testing.T) {
	rotur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"mist"}`))
	}))
	defer rotur.Close()

	cfg := testConfig(t, rotur.URL)
	g, fake := newTestGateway(t, cfg, &scriptedChat{})

	g.handleInbound(context.Background(), inbound("count", "m1", "u1", "1", false))

	reactions := fake.snapshot(&fake.reactions)
	if len(reactions) != 1 || reactions[0] != "count|m1|✅" {
		t.Errorf("reactions = %v", reactions)
	}
	if st := g.countStore.Snapshot("count"); st == nil || st.CurrentCount != 1 {
		t.Errorf("count not committed: %+v", st)
	}
}

func TestCountingChannelMentionDoesNotReachAgent(t *testing.T) {
	rotur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"mist"}`))
	}))
	defer rotur.Close()

	cfg := testConfig(t, rotur.URL)
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{textResponse("hi")}}
	g, fake := newTestGateway(t, cfg, chat)

	g.handleInbound(context.Background(), inbound("count", "m1", "u1", "hello <@bot-1>", true))
	time.Sleep(50 * time.Millisecond)

	chat.mu.Lock()
	calls := len(chat.requests)
	chat.mu.Unlock()
	if calls != 0 {
		t.Errorf("agent invoked %d times for counting-channel message", calls)
	}
	if replies := fake.snapshot(&fake.replies); len(replies) != 0 {
		t.Errorf("unexpected replies: %v", replies)
	}
}

func TestAgentMention_PlaceholderLifecycle(t *testing.T) {
	cfg := testConfig(t, "")
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{textResponse("hello mist")}}
	g, fake := newTestGateway(t, cfg, chat)

	g.handleAgentMessage(context.Background(), inbound("general", "m1", "u1", "hi bot", true))

	replies := fake.snapshot(&fake.replies)
	if len(replies) != 1 || replies[0] != "general|m1|Thinking..." {
		t.Fatalf("replies = %v", replies)
	}
	edits := fake.snapshot(&fake.edits)
	if len(edits) == 0 {
		t.Fatal("no edits recorded")
	}
	last := edits[len(edits)-1]
	if last != "general|r1|hello mist" {
		t.Errorf("final edit = %q", last)
	}
}

func TestAgentMention_SilentDeletesPlaceholder(t *testing.T) {
	cfg := testConfig(t, "")
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{
		toolCallResponse("silent_exit", "{}"),
	}}
	g, fake := newTestGateway(t, cfg, chat)

	g.handleAgentMessage(context.Background(), inbound("general", "m1", "u1", "spam", true))

	deletes := fake.snapshot(&fake.deletes)
	if len(deletes) != 1 || deletes[0] != "general|r1" {
		t.Errorf("deletes = %v", deletes)
	}
}

func TestAgentMention_ModelErrorShowsFailureNotice(t *testing.T) {
	cfg := testConfig(t, "")
	chat := &scriptedChat{err: fmt.Errorf("upstream down")}
	g, fake := newTestGateway(t, cfg, chat)

	g.handleAgentMessage(context.Background(), inbound("general", "m1", "u1", "hi", true))

	edits := fake.snapshot(&fake.edits)
	if len(edits) == 0 {
		t.Fatal("no edits recorded")
	}
	if got := edits[len(edits)-1]; !strings.Contains(got, failureText) {
		t.Errorf("final edit = %q, want failure notice", got)
	}
}

func TestAgentTranscriptCarriesChannelContext(t *testing.T) {
	cfg := testConfig(t, "")
	chat := &scriptedChat{responses: []openai.ChatCompletionResponse{textResponse("ok")}}
	g, _ := newTestGateway(t, cfg, chat)

	g.handleInbound(context.Background(), inbound("general", "m0", "u2", "the release ships friday", false))
	g.handleAgentMessage(context.Background(), inbound("general", "m1", "u1", "when is the release? <@bot-1>", true))

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(chat.requests))
	}
	var joined strings.Builder
	for _, m := range chat.requests[0].Messages {
		joined.WriteString(m.Content)
		joined.WriteString("\n")
	}
	if !strings.Contains(joined.String(), "the release ships friday") {
		t.Error("transcript missing cached channel context")
	}
}

func TestCacheEditAndDeleteRouting(t *testing.T) {
	cfg := testConfig(t, "")
	g, _ := newTestGateway(t, cfg, &scriptedChat{})

	g.handleInbound(context.Background(), inbound("general", "m1", "u1", "first", false))
	g.handleInbound(context.Background(), bus.InboundMessage{
		Kind: bus.EventEdit, ChannelID: "general", MessageID: "m1", Content: "first, edited",
	})
	recent := g.cache.Recent("general", 10)
	if len(recent) != 1 || recent[0].Content != "first, edited" {
		t.Errorf("after edit: %+v", recent)
	}

	g.handleInbound(context.Background(), bus.InboundMessage{
		Kind: bus.EventDelete, ChannelID: "general", MessageID: "m1",
	})
	if recent := g.cache.Recent("general", 10); len(recent) != 0 {
		t.Errorf("after delete: %+v", recent)
	}
}

func TestRunJob_Announce(t *testing.T) {
	cfg := testConfig(t, "")
	g, _ := newTestGateway(t, cfg, &scriptedChat{})

	status, err := g.runJob(cron.NewJob("a", cron.Schedule{}, cron.Payload{
		Kind: cron.PayloadAnnounce, ChannelID: "c9", Message: "meeting in 5",
	}))
	if err != nil || status != "sent" {
		t.Fatalf("runJob = %q, %v", status, err)
	}

	select {
	case out := <-g.bus.Outbound:
		if out.ChannelID != "c9" || out.Content != "meeting in 5" {
			t.Errorf("outbound = %+v", out)
		}
	default:
		t.Error("no outbound message queued")
	}

	if _, err := g.runJob(cron.NewJob("b", cron.Schedule{}, cron.Payload{Kind: cron.PayloadAnnounce})); err == nil {
		t.Error("announce without channel should fail")
	}
	if _, err := g.runJob(cron.NewJob("c", cron.Schedule{}, cron.Payload{Kind: "bogus"})); err == nil {
		t.Error("unknown payload kind should fail")
	}
}

func TestRunJob_MemoryCleanup(t *testing.T) {
	cfg := testConfig(t, "")
	g, _ := newTestGateway(t, cfg, &scriptedChat{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.memStore.SetClock(func() time.Time { return base })
	if _, err := g.memStore.Save("g1", "short-lived fact", nil, 5, 0.001, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	g.memStore.SetClock(func() time.Time { return base.Add(24 * time.Hour) })

	status, err := g.runJob(cron.NewJob("m", cron.Schedule{}, cron.Payload{Kind: cron.PayloadMemoryCleanup}))
	if err != nil {
		t.Fatalf("runJob: %v", err)
	}
	if status != "removed 1 expired memories" {
		t.Errorf("status = %q", status)
	}
}

func TestRunJob_CountingSnapshot(t *testing.T) {
	rotur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"mist"}`))
	}))
	defer rotur.Close()

	cfg := testConfig(t, rotur.URL)
	g, _ := newTestGateway(t, cfg, &scriptedChat{})
	g.handleInbound(context.Background(), inbound("count", "m1", "u1", "1", false))

	status, err := g.runJob(cron.NewJob("s", cron.Schedule{}, cron.Payload{Kind: cron.PayloadCountingSnapshot}))
	if err != nil {
		t.Fatalf("runJob: %v", err)
	}
	if status != "snapshotted 1 channels" {
		t.Errorf("status = %q", status)
	}
}

func TestEnsureInternalJobs_Idempotent(t *testing.T) {
	cfg := testConfig(t, "")
	g, _ := newTestGateway(t, cfg, &scriptedChat{})

	if err := g.ensureInternalJobs(); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := g.ensureInternalJobs(); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if jobs := g.cron.ListJobs(); len(jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(jobs))
	}
}

func TestRun_ShutsDownOnSignal(t *testing.T) {
	cfg := testConfig(t, "")
	fake := &fakeSession{}
	sigCh := make(chan os.Signal, 1)
	g, err := NewWithOptions(cfg, Options{
		SessionFactory: func(string) (channel.DiscordSession, error) { return fake, nil },
		ChatClient:     &scriptedChat{},
		SignalChan:     sigCh,
	})
	if err != nil {
		t.Fatalf("create gateway: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not shut down")
	}
}

func TestPersona_FileOverridesDefault(t *testing.T) {
	cfg := testConfig(t, "")
	if err := os.WriteFile(filepath.Join(cfg.Bot.DataDir, "persona.md"), []byte("You are a very serious bot."), 0644); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	g, _ := newTestGateway(t, cfg, &scriptedChat{})
	if g.persona != "You are a very serious bot." {
		t.Errorf("persona = %q", g.persona)
	}

	cfg2 := testConfig(t, "")
	g2, _ := newTestGateway(t, cfg2, &scriptedChat{})
	if !strings.Contains(g2.persona, "roturbot") {
		t.Errorf("default persona = %q", g2.persona)
	}
}

func TestMessageCache(t *testing.T) {
	c := NewMessageCache(3)
	for i := 1; i <= 5; i++ {
		c.Add("c1", tools.ContextMessage{MessageID: fmt.Sprintf("m%d", i), Content: fmt.Sprintf("msg %d", i)})
	}
	recent := c.Recent("c1", 10)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3 (bounded)", len(recent))
	}
	if recent[0].MessageID != "m3" || recent[2].MessageID != "m5" {
		t.Errorf("order = %v", recent)
	}

	limited := c.Recent("c1", 2)
	if len(limited) != 2 || limited[1].MessageID != "m5" {
		t.Errorf("limited = %v", limited)
	}

	if got := c.Recent("empty", 5); len(got) != 0 {
		t.Errorf("unknown channel = %v", got)
	}
}
