package routing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/chatrelay/internal/channel"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/gif"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/persona"
	"github.com/soyeahso/chatrelay/internal/progress"
	"github.com/soyeahso/chatrelay/internal/session"
	"github.com/soyeahso/chatrelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel.
type mockChannel struct {
	id       string
	edit     bool
	maxLen   int
	editErr  error
	sendErr  error
	typingN  atomic.Int32
	handler  func(domain.InboundMessage)
	mu       sync.Mutex
	sent     []domain.OutboundMessage
	edits    []string
	nextID   int
	bodiesBy map[string]string
}

func (m *mockChannel) ID() string { return m.id }
func (m *mockChannel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{
		ChatTypes:     []domain.ChatType{domain.ChatTypeDM, domain.ChatTypeGroup},
		Edit:          m.edit,
		Typing:        true,
		MaxMessageLen: m.maxLen,
	}
}
func (m *mockChannel) Start(_ context.Context) error { return nil }
func (m *mockChannel) Stop(_ context.Context) error  { return nil }

func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return domain.MessageRef{}, m.sendErr
	}
	m.sent = append(m.sent, msg)
	m.nextID++
	ref := domain.MessageRef{ChannelID: m.id, ChatID: msg.To, MessageID: string(rune('a' + m.nextID - 1))}
	if m.bodiesBy == nil {
		m.bodiesBy = make(map[string]string)
	}
	m.bodiesBy[ref.MessageID] = msg.Body
	return ref, nil
}

func (m *mockChannel) Edit(_ context.Context, ref domain.MessageRef, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, body)
	m.bodiesBy[ref.MessageID] = body
	return nil
}

func (m *mockChannel) Typing(_ context.Context, _ string) error {
	m.typingN.Add(1)
	return nil
}

func (m *mockChannel) OnMessage(handler func(domain.InboundMessage)) {
	m.handler = handler
}

func (m *mockChannel) messages() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.sent...)
}

func (m *mockChannel) bodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		out = append(out, s.Body)
	}
	return out
}

// final returns the current body of every posted message, in order.
func (m *mockChannel) final() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, m.nextID)
	for i := range m.nextID {
		out = append(out, m.bodiesBy[string(rune('a'+i))])
	}
	return out
}

// replier answers every message with "echo: <text>" unless fn is set.
type replier struct {
	fn func(ctx context.Context, text string, onChunk func(string)) (string, error)
}

func (r *replier) Exchange(ctx context.Context, history []llm.Message, userText string, onChunk func(string), onTyping func()) (string, error) {
	if r.fn != nil {
		return r.fn(ctx, userText, onChunk)
	}
	reply := "echo: " + userText
	if onChunk != nil {
		onChunk(reply)
	}
	return reply, nil
}

type fixture struct {
	ch      *mockChannel
	router  *Router
	engine  *session.Engine
	ex      *replier
	touches atomic.Int32
}

func (f *fixture) Touch() { f.touches.Add(1) }

func newFixture(t *testing.T, cfg Config, gifs session.GIFSource, opts ...Option) *fixture {
	t.Helper()
	log := testLogger()
	f := &fixture{ch: &mockChannel{id: "irc"}, ex: &replier{}}

	catalog, err := persona.New([]persona.Persona{
		{Name: "sarcastic_therapist", SystemPrompt: "be sarcastic"},
		{Name: "pirate", SystemPrompt: "arr"},
	}, "sarcastic_therapist")
	require.NoError(t, err)
	f.engine = session.NewEngine(session.Config{MaxContextLength: 10, GifChance: 1}, catalog, f.ex, gifs, log)

	reg := channel.NewRegistry(log)
	reg.Register(f.ch)
	f.router = NewRouter(reg, f.engine, cfg, log, append([]Option{WithActivity(f)}, opts...)...)
	return f
}

func inbound(from, body string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:        "m1",
		ChannelID: "irc",
		From:      from,
		ChatID:    "#lounge",
		ChatType:  domain.ChatTypeGroup,
		Body:      body,
		Timestamp: time.Now(),
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
		ok   bool
	}{
		{"/clear", Command{Name: "clear"}, true},
		{"!RESET", Command{Name: "reset"}, true},
		{"/setrole  Pirate ", Command{Name: "setrole", Arg: "Pirate"}, true},
		{"!gif on", Command{Name: "gif", Arg: "on"}, true},
		{"/leaderboard", Command{Name: "leaderboard"}, true},
		{"/unknown thing", Command{}, false},
		{"hello /clear", Command{}, false},
		{"/", Command{}, false},
		{"", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_ChatMessageStreamsReply(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.router.HandleInbound(context.Background(), inbound("alice", "hello there"))

	assert.Equal(t, []string{"echo: hello there"}, f.ch.bodies())
	msg := f.ch.messages()[0]
	assert.Equal(t, "#lounge", msg.To)
	assert.Equal(t, "m1", msg.ReplyToID)
	assert.GreaterOrEqual(t, f.ch.typingN.Load(), int32(1))
	assert.Equal(t, int32(1), f.touches.Load())
}

func TestRouter_DMRepliesToSender(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	msg := inbound("alice", "psst")
	msg.ChatType = domain.ChatTypeDM
	msg.ChatID = "alice"

	f.router.HandleInbound(context.Background(), msg)
	require.Len(t, f.ch.messages(), 1)
	assert.Equal(t, "alice", f.ch.messages()[0].To)
}

func TestRouter_Filters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		msg  domain.InboundMessage
	}{
		{"other channel", Config{Target: config.TargetConfig{Channel: "web"}}, inbound("alice", "hi")},
		{"other chat", Config{Target: config.TargetConfig{Channel: "irc", Chat: "#main"}}, inbound("alice", "hi")},
		{"not allowed", Config{AllowedUsers: []string{"bob"}}, inbound("alice", "hi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg, nil)
			f.router.HandleInbound(context.Background(), tt.msg)
			assert.Empty(t, f.ch.messages())
			assert.Equal(t, int32(0), f.touches.Load())
		})
	}
}

func TestRouter_TargetChatMatchesCaseInsensitively(t *testing.T) {
	f := newFixture(t, Config{
		Target:       config.TargetConfig{Channel: "irc", Chat: "#Lounge"},
		AllowedUsers: []string{"alice"},
	}, nil)
	f.router.HandleInbound(context.Background(), inbound("alice", "hi"))
	assert.Len(t, f.ch.messages(), 1)
}

func TestRouter_EmptyBodyOnlyTouches(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.router.HandleInbound(context.Background(), inbound("alice", "   "))
	assert.Empty(t, f.ch.messages())
	assert.Equal(t, int32(1), f.touches.Load())
}

func TestRouter_ClearCommand(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	f.router.HandleInbound(ctx, inbound("alice", "/clear"))
	f.router.HandleInbound(ctx, inbound("alice", "hi"))
	f.router.HandleInbound(ctx, inbound("alice", "!reset"))

	assert.Equal(t, []string{
		"No conversation history to clear.",
		"echo: hi",
		"Conversation history cleared.",
	}, f.ch.bodies())
	assert.Len(t, f.engine.Snapshot("irc:alice"), 1)
}

func TestRouter_RoleCommands(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	f.router.HandleInbound(ctx, inbound("alice", "/listroles"))
	f.router.HandleInbound(ctx, inbound("alice", "/setrole"))
	f.router.HandleInbound(ctx, inbound("alice", "/setrole Wizard"))
	f.router.HandleInbound(ctx, inbound("alice", "/setrole PIRATE"))

	got := f.ch.bodies()
	require.Len(t, got, 4)
	assert.Equal(t, "**Available Roles:**\n- `sarcastic_therapist`\n- `pirate`\nUse `/setrole <role_name>` to choose one.", got[0])
	assert.Contains(t, got[1], "Usage: `/setrole <role_name>`")
	assert.Equal(t, "Sorry, 'wizard' is not a valid role. Use `/listroles` to see available roles.", got[2])
	assert.Equal(t, "Okay, I'll act as a `pirate` for you now.", got[3])
	assert.Equal(t, "arr", f.engine.Snapshot("irc:alice")[0].Content)
}

func TestRouter_GifCommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "happy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "happy", "yay.gif"), []byte("GIF89a"), 0o644))

	f := newFixture(t, Config{}, gif.NewPicker(dir))
	ctx := context.Background()

	f.router.HandleInbound(ctx, inbound("alice", "/gif"))
	f.router.HandleInbound(ctx, inbound("alice", "/gif on"))
	f.router.HandleInbound(ctx, inbound("alice", "!gif OFF"))
	f.router.HandleInbound(ctx, inbound("alice", "/gif sideways"))

	msgs := f.ch.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Here's a random happy GIF:", msgs[0].Body)
	require.Len(t, msgs[0].Media, 1)
	assert.Equal(t, filepath.Join(dir, "happy", "yay.gif"), msgs[0].Media[0].Path)
	assert.Equal(t, "yay.gif", msgs[0].Media[0].Filename)

	assert.Equal(t, "GIFs enabled for your conversations!", msgs[1].Body)
	assert.Equal(t, "GIFs disabled for your conversations!", msgs[2].Body)
	assert.Contains(t, msgs[3].Body, "Usage")
	assert.False(t, f.engine.GifEnabled("irc:alice"))
}

// fixedGIF always picks the same image.
type fixedGIF string

func (g fixedGIF) Analyze(string) string            { return "happy" }
func (g fixedGIF) PickRandom(string) (string, error) { return string(g), nil }

func TestRouter_AutoGifFollowsReply(t *testing.T) {
	f := newFixture(t, Config{}, fixedGIF("/gifs/happy/yay.gif"))
	ctx := context.Background()

	f.router.HandleInbound(ctx, inbound("alice", "/gif on"))
	f.router.HandleInbound(ctx, inbound("alice", "hello"))

	msgs := f.ch.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "echo: hello", msgs[1].Body)
	// GifChance is 1, so the reply carries a gif
	require.Len(t, msgs[2].Media, 1)
	assert.Equal(t, "/gifs/happy/yay.gif", msgs[2].Media[0].Path)
	assert.Empty(t, msgs[2].Body)
}

func TestRouter_GifWithoutImages(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.router.HandleInbound(context.Background(), inbound("alice", "/gif"))
	assert.Equal(t, []string{"No GIFs found."}, f.ch.bodies())
}

type brokenGIFs struct{}

func (brokenGIFs) Analyze(string) string { return "happy" }
func (brokenGIFs) PickRandom(string) (string, error) {
	return "", errors.New("open /gifs: permission denied")
}

func TestRouter_GifLookupError(t *testing.T) {
	f := newFixture(t, Config{}, brokenGIFs{})
	f.router.HandleInbound(context.Background(), inbound("alice", "/gif"))
	assert.Equal(t, []string{"Couldn't load a GIF right now."}, f.ch.bodies())
}

func TestRouter_BotMessagesCountAsActivity(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "happy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "happy", "yay.gif"), []byte("GIF89a"), 0o644))

	tests := []struct {
		name string
		body string
		gifs session.GIFSource
		fail bool
	}{
		{"command reply", "/clear", nil, false},
		{"gif", "/gif", gif.NewPicker(dir), false},
		{"failure notice", "hi", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, tt.gifs)
			if tt.fail {
				f.ex.fn = func(ctx context.Context, text string, onChunk func(string)) (string, error) {
					return "", llm.ErrBackendUnavailable
				}
			}
			f.router.HandleInbound(context.Background(), inbound("alice", tt.body))
			require.Len(t, f.ch.messages(), 1)
			assert.Equal(t, int32(2), f.touches.Load(), "inbound message plus the bot's message")
		})
	}
}

func TestRouter_FailedSendIsNotActivity(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.ch.sendErr = errors.New("disconnected")
	f.router.HandleInbound(context.Background(), inbound("alice", "/clear"))
	assert.Equal(t, int32(1), f.touches.Load())
}

func TestRouter_FailureNotice(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.ex.fn = func(ctx context.Context, text string, onChunk func(string)) (string, error) {
		return "", llm.ErrBackendUnavailable
	}
	f.router.HandleInbound(context.Background(), inbound("alice", "hi"))
	assert.Equal(t, []string{session.NoticeFailure}, f.ch.bodies())
}

func TestRouter_PartialTextStaysThenNotice(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.ex.fn = func(ctx context.Context, text string, onChunk func(string)) (string, error) {
		onChunk("half a tho")
		return "half a tho", llm.ErrStreamInterrupted
	}
	f.router.HandleInbound(context.Background(), inbound("alice", "hi"))
	assert.Equal(t, []string{"half a tho", session.NoticeFailure}, f.ch.bodies())
}

func TestRouter_BusyNotice(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	f.ex.fn = func(ctx context.Context, text string, onChunk func(string)) (string, error) {
		if text == "first" {
			close(started)
			<-release
		}
		return "done " + text, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.router.HandleInbound(context.Background(), inbound("alice", "first"))
	}()
	<-started
	f.router.HandleInbound(context.Background(), inbound("alice", "second"))
	close(release)
	wg.Wait()

	assert.Equal(t, []string{session.NoticeBusy, "done first"}, f.ch.bodies())
}

func TestRouter_EditChannelEditsInPlace(t *testing.T) {
	f := newFixture(t, Config{Edit: EditStreamerConfig{Interval: time.Millisecond, MinChars: 1}}, nil)
	f.ch.edit = true
	f.ex.fn = func(ctx context.Context, text string, onChunk func(string)) (string, error) {
		onChunk("Assistant: Hel")
		onChunk("lo")
		return "Hello", nil
	}

	f.router.HandleInbound(context.Background(), inbound("alice", "hi"))
	require.Len(t, f.ch.messages(), 1)
	assert.Equal(t, []string{"Hello"}, f.ch.final())
}

func TestRouter_ProgressCommands(t *testing.T) {
	log := testLogger()
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := hooks.NewManager(log)
	tracker := progress.NewTracker(store.NewProgressStore(db), 100, m, log)

	f := newFixture(t, Config{}, nil, WithProgress(tracker), WithHooks(m))
	tracker.Subscribe(m, f.router.SendTo)
	ctx := context.Background()

	f.router.HandleInbound(ctx, inbound("alice", "/level"))
	f.router.HandleInbound(ctx, inbound("alice", "/badges"))
	f.router.HandleInbound(ctx, inbound("alice", "/leaderboard"))

	// every message earns 100 XP before the command runs
	got := f.ch.bodies()
	require.Len(t, got, 6)
	assert.Equal(t, "alice is **Level 1** with 100 XP (100 XP to next level).", got[0])
	assert.Equal(t, "🎉 alice leveled up to **Level 2**!", got[1])
	assert.Equal(t, "🏅 alice earned the **Congrats, You Did Something 🥱** badge!", got[2])
	assert.Equal(t, "alice's badges: Congrats, You Did Something 🥱", got[3])
	assert.Equal(t, "🎉 alice leveled up to **Level 3**!", got[4])
	assert.True(t, strings.HasPrefix(got[5], "🏆 Leaderboard\n1. alice: Level 3 (300 XP)"), got[5])
}

func TestRouter_ProgressDisabled(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.router.HandleInbound(context.Background(), inbound("alice", "/level"))
	assert.Equal(t, []string{"Progress tracking is disabled."}, f.ch.bodies())
}

func TestRouter_Announce(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	assert.Error(t, f.router.Announce(context.Background(), "anyone?"))

	f = newFixture(t, Config{Target: config.TargetConfig{Channel: "irc", Chat: "#lounge"}}, nil)
	require.NoError(t, f.router.Announce(context.Background(), "anyone?"))
	msgs := f.ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "#lounge", msgs[0].To)

	assert.Error(t, f.router.SendTo(context.Background(), "web", "x", "y"))
}

func TestRouter_WireDispatchesConcurrently(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.router.Wire(context.Background())
	require.NotNil(t, f.ch.handler)

	f.ch.handler(inbound("alice", "one"))
	m := inbound("bob", "two")
	f.ch.handler(m)

	require.True(t, f.router.Wait(time.Second))
	assert.ElementsMatch(t, []string{"echo: one", "echo: two"}, f.ch.bodies())
}

func TestRouterConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.Channels.Target = config.TargetConfig{Channel: "irc", Chat: "#x"}
	cfg.Access.AllowedUsers = []string{"a"}

	rc := RouterConfigFrom(cfg)
	assert.Equal(t, "#x", rc.Target.Chat)
	assert.Equal(t, []string{"a"}, rc.AllowedUsers)
	assert.Equal(t, 1200*time.Millisecond, rc.Edit.Interval)
	assert.Equal(t, 40, rc.Edit.MinChars)
	assert.Equal(t, 2000, rc.Edit.MaxMessageLen)
}
