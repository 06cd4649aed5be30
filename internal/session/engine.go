// Package session owns per-user conversation state and runs exchanges.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatrelay/internal/gif"
	"github.com/soyeahso/chatrelay/internal/hooks"
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/logging"
	"github.com/soyeahso/chatrelay/internal/persona"
)

var (
	// ErrSessionBusy is returned when the user already has an exchange in flight.
	ErrSessionBusy = errors.New("session busy")
	// ErrUnknownRole is returned by SetRole for names not in the catalog.
	ErrUnknownRole = errors.New("unknown role")
)

// User-facing notices for failed messages.
const (
	NoticeBusy    = "Hold on, I'm still answering your last message."
	NoticeFailure = "Sorry, I couldn't get a response from the AI. Please try again later."
)

// Notice maps an error from HandleUserMessage to the text shown to the user.
func Notice(err error) string {
	if errors.Is(err, ErrSessionBusy) {
		return NoticeBusy
	}
	return NoticeFailure
}

// Exchanger runs one streamed backend exchange. relay.Relay implements it.
type Exchanger interface {
	Exchange(ctx context.Context, history []llm.Message, userText string, onChunk func(string), onTyping func()) (string, error)
}

// GIFSource picks reaction images. gif.Picker implements it.
type GIFSource interface {
	Analyze(text string) string
	PickRandom(category string) (string, error)
}

// ActivityRecorder is told whenever the engine sends to the channel.
type ActivityRecorder interface {
	Touch()
}

// Callbacks carry an exchange's UI updates back to the platform wrapper.
type Callbacks struct {
	OnChunk  func(text string)
	OnTyping func()
}

// Result describes a completed exchange.
type Result struct {
	RequestID string
	Reply     string
	GIF       string // attached image path, empty when none
	Duration  time.Duration
}

// Config controls the engine.
type Config struct {
	MaxContextLength int
	GifChance        float64
}

// state is one user's conversation. lock is held for a whole exchange and
// for every mutation.
type state struct {
	lock    sync.Mutex
	history *History
	gifAuto bool

	// lastActivity is unix nanos of the latest user or assistant turn. It
	// is written under lock and read without it.
	lastActivity atomic.Int64
}

// Engine owns the user → state map and orchestrates exchanges.
type Engine struct {
	cfg      Config
	catalog  *persona.Catalog
	relay    Exchanger
	gifs     GIFSource
	activity ActivityRecorder
	hooks    *hooks.Manager
	log      *logging.Logger

	chance func() float64
	now    func() time.Time

	mu     sync.Mutex
	states map[string]*state
}

// Option customizes an Engine.
type Option func(*Engine)

// WithHooks emits exchange lifecycle events to m.
func WithHooks(m *hooks.Manager) Option { return func(e *Engine) { e.hooks = m } }

// WithActivity records successful replies on a.
func WithActivity(a ActivityRecorder) Option { return func(e *Engine) { e.activity = a } }

// WithClock replaces time.Now for activity timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRand replaces the GIF probability draw; f must return values in [0,1).
func WithRand(f func() float64) Option { return func(e *Engine) { e.chance = f } }

// NewEngine creates an engine. gifs may be nil to disable GIFs entirely.
func NewEngine(cfg Config, catalog *persona.Catalog, relay Exchanger, gifs GIFSource, log *logging.Logger, opts ...Option) *Engine {
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = 10
	}
	e := &Engine{
		cfg:     cfg,
		catalog: catalog,
		relay:   relay,
		gifs:    gifs,
		log:     log.Sub("session"),
		chance:  rand.Float64,
		now:     time.Now,
		states:  make(map[string]*state),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// stateFor returns the user's state, creating it lazily.
func (e *Engine) stateFor(userID string) *state {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[userID]
	if !ok {
		st = &state{history: NewHistory(e.cfg.MaxContextLength, e.catalog.Default())}
		e.states[userID] = st
	}
	return st
}

// HandleUserMessage runs one exchange for userID. If the user already has
// one in flight it fails at once with ErrSessionBusy. On backend failure
// the user message stays in history and the error is returned; use Notice
// for the text to show.
func (e *Engine) HandleUserMessage(ctx context.Context, userID, text string, cb Callbacks) (*Result, error) {
	st := e.stateFor(userID)
	if !st.lock.TryLock() {
		e.log.Debug().Str("user", userID).Msg("rejected message, exchange in flight")
		return nil, ErrSessionBusy
	}
	defer st.lock.Unlock()

	reqID := uuid.New().String()[:8]
	log := e.log.With("req", reqID)
	start := time.Now()

	st.history.Append(llm.Message{Role: llm.RoleUser, Content: text})
	st.lastActivity.Store(e.now().UnixNano())
	snapshot := st.history.Snapshot()
	prior := snapshot[:len(snapshot)-1] // the new message is passed separately

	log.Info().
		Str("user", userID).
		Str("persona", st.history.Persona().Name).
		Int("historyLen", st.history.Len()).
		Msg("exchange started")
	e.emit(ctx, hooks.EventExchangeStart, map[string]any{"user": userID, "req": reqID})

	reply, err := e.relay.Exchange(ctx, prior, text, cb.OnChunk, cb.OnTyping)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Int("partial", len(reply)).Msg("exchange failed")
		e.emit(ctx, hooks.EventExchangeFailed, map[string]any{"user": userID, "req": reqID, "error": err.Error()})
		return nil, fmt.Errorf("exchange %s: %w", reqID, err)
	}

	st.history.Append(llm.Message{Role: llm.RoleAssistant, Content: reply})
	st.lastActivity.Store(e.now().UnixNano())
	if e.activity != nil {
		e.activity.Touch()
	}

	res := &Result{RequestID: reqID, Reply: reply, Duration: time.Since(start)}
	if st.gifAuto {
		res.GIF = e.autoGIF(log, reply)
	}

	log.Info().
		Str("user", userID).
		Dur("duration", res.Duration).
		Bool("gif", res.GIF != "").
		Msg("exchange complete")
	e.emit(ctx, hooks.EventExchangeComplete, map[string]any{
		"user":     userID,
		"req":      reqID,
		"duration": res.Duration.String(),
	})
	return res, nil
}

// autoGIF applies the GIF policy after a successful exchange. Selection
// failures are logged and skipped.
func (e *Engine) autoGIF(log *logging.Logger, reply string) string {
	if e.gifs == nil || e.chance() >= e.cfg.GifChance {
		return ""
	}
	category := e.gifs.Analyze(reply)
	path, err := e.gifs.PickRandom(category)
	if err != nil {
		log.Debug().Err(err).Str("category", category).Msg("skipping auto gif")
		return ""
	}
	return path
}

// SetRole switches the user's persona. It waits for an in-flight exchange.
func (e *Engine) SetRole(userID, name string) (persona.Persona, error) {
	p, err := e.catalog.Resolve(name)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	st := e.stateFor(userID)
	st.lock.Lock()
	defer st.lock.Unlock()
	st.history.SetPersona(p)
	e.log.Info().Str("user", userID).Str("persona", p.Name).Msg("persona changed")
	return p, nil
}

// ClearHistory empties the user's history, keeping persona and GIF
// preference. It reports whether there was anything to clear.
func (e *Engine) ClearHistory(userID string) bool {
	st := e.stateFor(userID)
	st.lock.Lock()
	defer st.lock.Unlock()
	had := st.history.Len() > 0
	st.history.Clear()
	e.log.Info().Str("user", userID).Bool("had", had).Msg("history cleared")
	return had
}

// SetGifPreference turns GIF auto-replies on or off for the user.
func (e *Engine) SetGifPreference(userID string, enabled bool) {
	st := e.stateFor(userID)
	st.lock.Lock()
	defer st.lock.Unlock()
	st.gifAuto = enabled
}

// PickRandomGif returns an image path from category, or any category when
// empty. It touches no user state.
func (e *Engine) PickRandomGif(category string) (string, error) {
	if e.gifs == nil {
		return "", fmt.Errorf("%w: gifs disabled", gif.ErrNotFound)
	}
	return e.gifs.PickRandom(category)
}

// Snapshot returns what the next exchange would send as context for userID.
func (e *Engine) Snapshot(userID string) []llm.Message {
	st := e.stateFor(userID)
	st.lock.Lock()
	defer st.lock.Unlock()
	return st.history.Snapshot()
}

// GifEnabled reports the user's GIF auto-reply preference.
func (e *Engine) GifEnabled(userID string) bool {
	st := e.stateFor(userID)
	st.lock.Lock()
	defer st.lock.Unlock()
	return st.gifAuto
}

// LastActivity reports when userID last sent or received a message. ok is
// false for users the engine has not exchanged a message with. It does not
// wait for an in-flight exchange.
func (e *Engine) LastActivity(userID string) (at time.Time, ok bool) {
	e.mu.Lock()
	st, found := e.states[userID]
	e.mu.Unlock()
	if !found {
		return time.Time{}, false
	}
	ns := st.lastActivity.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Catalog returns the persona catalog.
func (e *Engine) Catalog() *persona.Catalog { return e.catalog }

// Users returns the sorted IDs of users with state.
func (e *Engine) Users() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) emit(ctx context.Context, event string, data map[string]any) {
	if e.hooks != nil {
		e.hooks.Emit(ctx, event, data)
	}
}
