// Package routing connects messaging channels to the conversation engine:
// it filters inbound messages, dispatches commands and streams replies.
package routing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/channel"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/progress"
	"github.com/soyeahso/chatrelay/internal/session"
)

// Config controls which messages the router accepts and how replies stream.
type Config struct {
	Target       config.TargetConfig
	AllowedUsers []string // empty = everyone

	Edit    EditStreamerConfig
	Flusher StreamFlusherConfig
}

// RouterConfigFrom maps the loaded configuration onto a router Config.
func RouterConfigFrom(cfg config.Config) Config {
	return Config{
		Target:       cfg.Channels.Target,
		AllowedUsers: cfg.Access.AllowedUsers,
		Edit: EditStreamerConfig{
			Interval:      cfg.Stream.EditInterval(),
			MinChars:      cfg.Stream.EditMinChars,
			MaxMessageLen: cfg.Stream.MaxMessageLength,
		},
	}
}

// Router routes inbound messages to the engine and replies to channels.
type Router struct {
	channels *channel.Registry
	engine   *session.Engine
	tracker  *progress.Tracker
	activity session.ActivityRecorder
	hooks    *hooks.Manager
	cfg      Config
	allowed  map[string]bool
	log      *logging.Logger

	inflight sync.WaitGroup
}

// Option customizes a Router.
type Option func(*Router)

// WithProgress enables the level, badges and leaderboard commands.
func WithProgress(t *progress.Tracker) Option { return func(r *Router) { r.tracker = t } }

// WithActivity touches a on every accepted message and every reply the router sends.
func WithActivity(a session.ActivityRecorder) Option { return func(r *Router) { r.activity = a } }

// WithHooks emits message_received for every accepted message.
func WithHooks(m *hooks.Manager) Option { return func(r *Router) { r.hooks = m } }

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, engine *session.Engine, cfg Config, log *logging.Logger, opts ...Option) *Router {
	r := &Router{
		channels: channels,
		engine:   engine,
		cfg:      cfg,
		log:      log.Sub("routing"),
	}
	if len(cfg.AllowedUsers) > 0 {
		r.allowed = make(map[string]bool, len(cfg.AllowedUsers))
		for _, u := range cfg.AllowedUsers {
			r.allowed[strings.TrimSpace(u)] = true
		}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// accepts reports whether msg is from the served chat and an allowed user.
func (r *Router) accepts(msg domain.InboundMessage) (bool, string) {
	if t := r.cfg.Target; t.Channel != "" && msg.ChannelID != t.Channel {
		return false, "outside target channel"
	}
	if t := r.cfg.Target; t.Chat != "" && !strings.EqualFold(msg.ChatID, t.Chat) {
		return false, "outside target chat"
	}
	if r.allowed != nil && !r.allowed[msg.From] {
		return false, "user not allowed"
	}
	return true, ""
}

// HandleInbound processes one inbound message from any channel.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	if ok, why := r.accepts(msg); !ok {
		r.log.Debug().
			Str("channel", msg.ChannelID).
			Str("chatId", msg.ChatID).
			Str("from", msg.From).
			Str("reason", why).
			Msg("message ignored")
		return
	}

	r.touch()
	if r.hooks != nil {
		r.hooks.Emit(ctx, hooks.EventMessageReceived, map[string]any{
			"user":    UserKey(msg),
			"name":    displayName(msg),
			"channel": msg.ChannelID,
			"chat":    replyTarget(msg),
		})
	}

	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return
	}

	ch, ok := r.channels.Get(msg.ChannelID)
	if !ok {
		r.log.Error().Str("channel", msg.ChannelID).Msg("channel not found for reply")
		return
	}

	if cmd, ok := ParseCommand(text); ok {
		r.log.Info().
			Str("channel", msg.ChannelID).
			Str("from", msg.From).
			Str("command", cmd.Name).
			Msg("command")
		r.runCommand(ctx, ch, msg, cmd)
		return
	}
	r.exchange(ctx, ch, msg, text)
}

// exchange streams the engine's reply into the chat.
func (r *Router) exchange(ctx context.Context, ch domain.Channel, msg domain.InboundMessage, text string) {
	target := replyTarget(msg)
	sink := r.newSink(ctx, ch, target, msg.ID)

	typing := func() {
		if err := ch.Typing(ctx, target); err != nil {
			r.log.Debug().Err(err).Str("channel", ch.ID()).Msg("typing indicator failed")
		}
	}
	typing()

	res, err := r.engine.HandleUserMessage(ctx, UserKey(msg), text, session.Callbacks{
		OnChunk:  sink.OnDelta,
		OnTyping: typing,
	})
	if err != nil {
		// whatever streamed before the failure stays visible
		sink.Finish("")
		if !errors.Is(err, session.ErrSessionBusy) {
			r.log.Warn().Err(err).Str("from", msg.From).Bool("partialShown", sink.Sent()).Msg("exchange failed")
		}
		r.reply(ctx, ch, msg, session.Notice(err))
		return
	}
	sink.Finish(res.Reply)

	if res.GIF != "" {
		r.sendGIF(ctx, ch, msg, res.GIF, "")
	}

	r.log.Info().
		Str("channel", msg.ChannelID).
		Str("to", target).
		Str("req", res.RequestID).
		Dur("duration", res.Duration).
		Msg("reply sent")
}

// newSink picks progressive edits when the channel supports them.
func (r *Router) newSink(ctx context.Context, ch domain.Channel, to, replyTo string) replySink {
	if ch.Capabilities().Edit {
		return NewEditStreamer(ctx, r.cfg.Edit, ch, to, replyTo, r.log)
	}
	return NewStreamFlusher(ctx, r.cfg.Flusher, ch, to, r.log)
}

func (r *Router) reply(ctx context.Context, ch domain.Channel, msg domain.InboundMessage, body string) {
	_, err := ch.Send(ctx, domain.OutboundMessage{
		ChannelID: ch.ID(),
		To:        replyTarget(msg),
		Body:      body,
		ReplyToID: msg.ID,
	})
	if err != nil {
		r.log.Error().Err(err).Str("channel", ch.ID()).Msg("failed to send reply")
		return
	}
	r.touch()
}

func (r *Router) sendGIF(ctx context.Context, ch domain.Channel, msg domain.InboundMessage, path, caption string) {
	out := domain.OutboundMessage{
		ChannelID: ch.ID(),
		To:        replyTarget(msg),
		Body:      caption,
		ReplyToID: msg.ID,
		Media:     []domain.Attachment{{Path: path, Filename: filepath.Base(path)}},
	}
	if _, err := ch.Send(ctx, out); err != nil {
		r.log.Error().Err(err).Str("gif", path).Msg("failed to send gif")
		return
	}
	r.touch()
}

// touch records channel activity for the inactivity watchdog.
func (r *Router) touch() {
	if r.activity != nil {
		r.activity.Touch()
	}
}

// Wire registers the router on every channel. Each message is handled on
// its own goroutine so one user's exchange never delays another's.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.HandleInbound(ctx, msg)
			}()
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Wait blocks until every message handed out by Wire has been handled,
// or until timeout passes.
func (r *Router) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// SendTo sends a message to a chat on a specific channel.
func (r *Router) SendTo(ctx context.Context, channelID, chatID, body string) error {
	ch, ok := r.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	_, err := ch.Send(ctx, domain.OutboundMessage{
		ChannelID: channelID,
		To:        chatID,
		Body:      body,
	})
	return err
}

// Announce posts body into the configured target chat. The inactivity
// watchdog nudges through it.
func (r *Router) Announce(ctx context.Context, body string) error {
	t := r.cfg.Target
	if t.Channel == "" || t.Chat == "" {
		return fmt.Errorf("no target chat configured")
	}
	return r.SendTo(ctx, t.Channel, t.Chat, body)
}
