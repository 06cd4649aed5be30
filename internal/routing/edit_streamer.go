package routing

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// EditStreamerConfig controls progressive edits.
type EditStreamerConfig struct {
	// Interval is the minimum time between two edits of the same message.
	Interval time.Duration
	// MinChars is how much new text must accumulate before an edit.
	MinChars int
	// MaxMessageLen rolls the reply over into a new message past this length.
	MaxMessageLen int
}

// EditStreamer serves channels that can edit: the first fragment posts a
// message and later fragments are folded into it by edits, throttled by a
// rate limiter so the platform's edit limits hold.
type EditStreamer struct {
	cfg     EditStreamerConfig
	dst     destination
	limiter *rate.Limiter

	mu     sync.Mutex
	text   string // body of the message currently being edited
	shown  int    // len(text) as last delivered
	ref    *domain.MessageRef
	rolled bool // an earlier message was closed
	sent   bool
}

// NewEditStreamer creates a streamer posting into chat to on ch.
func NewEditStreamer(ctx context.Context, cfg EditStreamerConfig, ch domain.Channel, to, replyTo string, log *logging.Logger) *EditStreamer {
	if cfg.Interval <= 0 {
		cfg.Interval = 1200 * time.Millisecond
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 2000
	}
	if limit := ch.Capabilities().MaxMessageLen; limit > 0 && limit < cfg.MaxMessageLen {
		cfg.MaxMessageLen = limit
	}
	return &EditStreamer{
		cfg:     cfg,
		dst:     destination{ctx: ctx, ch: ch, to: to, replyTo: replyTo, log: log},
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// OnDelta folds text into the current message.
func (e *EditStreamer) OnDelta(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.text += text
	e.rolloverLocked()

	switch {
	case e.ref == nil:
		e.postLocked()
	case len(e.text)-e.shown >= e.cfg.MinChars && e.limiter.Allow():
		e.editLocked()
	}
}

// Finish brings the message up to date, waiting out the rate limit if
// needed. When no rollover happened the cleaned final text replaces the
// raw stream.
func (e *EditStreamer) Finish(final string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	force := false
	if final != "" && !e.rolled && final != e.text {
		e.text, force = final, true
	}
	e.rolloverLocked()

	if e.ref == nil {
		e.postLocked()
		return
	}
	if !force && e.shown == len(e.text) {
		return
	}
	// best effort: a cancelled context still gets one edit attempt
	_ = e.limiter.Wait(e.dst.ctx)
	e.editLocked()
}

// Sent reports whether any message was posted.
func (e *EditStreamer) Sent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

// rolloverLocked closes the current message while text exceeds the
// length limit, moving the overflow into a fresh one.
func (e *EditStreamer) rolloverLocked() {
	for len(e.text) > e.cfg.MaxMessageLen {
		cut := splitPoint(e.text, e.cfg.MaxMessageLen)
		head, tail := strings.TrimRight(e.text[:cut], " \n"), strings.TrimLeft(e.text[cut:], " \n")

		e.text = head
		if e.ref == nil {
			e.postLocked()
		} else {
			e.editLocked()
		}
		e.text, e.shown, e.ref, e.rolled = tail, 0, nil, true
	}
}

func (e *EditStreamer) postLocked() {
	body := strings.TrimSpace(e.text)
	if body == "" {
		return
	}
	ref, err := e.dst.send(body)
	if err != nil {
		return
	}
	e.ref, e.shown, e.sent = &ref, len(e.text), true
	e.limiter.Allow() // the first edit waits a full interval after the post
}

func (e *EditStreamer) editLocked() {
	body := strings.TrimSpace(e.text)
	if body == "" {
		return
	}
	if err := e.dst.ch.Edit(e.dst.ctx, *e.ref, body); err != nil {
		e.dst.log.Warn().Err(err).Str("channel", e.dst.ch.ID()).Msg("edit failed, continuing in a new message")
		e.text = e.text[min(e.shown, len(e.text)):]
		e.ref, e.shown, e.rolled = nil, 0, true
		e.postLocked()
		return
	}
	e.shown = len(e.text)
}

// splitPoint picks where to cut s so the head fits in limit bytes,
// preferring the last newline or space and never splitting a rune.
func splitPoint(s string, limit int) int {
	if i := strings.LastIndexAny(s[:limit], "\n "); i > 0 {
		return i
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}
