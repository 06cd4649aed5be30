package routing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// replySink receives one streamed reply and puts it on a channel.
type replySink interface {
	// OnDelta handles the next fragment of raw backend text.
	OnDelta(text string)
	// Finish delivers whatever is still pending. final is the cleaned reply,
	// or empty when the exchange failed.
	Finish(final string)
	// Sent reports whether anything reached the channel.
	Sent() bool
}

// destination is the chat a reply is delivered to.
type destination struct {
	ctx     context.Context
	ch      domain.Channel
	to      string
	replyTo string
	log     *logging.Logger
}

func (d destination) send(body string) (domain.MessageRef, error) {
	ref, err := d.ch.Send(d.ctx, domain.OutboundMessage{
		ChannelID: d.ch.ID(),
		To:        d.to,
		Body:      body,
		ReplyToID: d.replyTo,
	})
	if err != nil {
		d.log.Error().Err(err).
			Str("channel", d.ch.ID()).
			Str("to", d.to).
			Msg("failed to send reply chunk")
	}
	return ref, err
}

// StreamFlusherConfig controls when buffered deltas are flushed to the channel.
type StreamFlusherConfig struct {
	// MaxBufferBytes triggers a flush when the buffer reaches this size.
	// Default: 300 bytes.
	MaxBufferBytes int

	// IdleTimeout triggers a flush when no new delta arrives within this duration.
	// Default: 2 seconds.
	IdleTimeout time.Duration
}

// minSentenceCut keeps a sentence flush from sending a fragment like "Hi."
// on its own.
const minSentenceCut = 40

// StreamFlusher serves channels that cannot edit: each flush at a
// paragraph, sentence, size or idle boundary becomes its own message.
type StreamFlusher struct {
	cfg StreamFlusherConfig
	dst destination

	mu      sync.Mutex
	pending string
	idle    *time.Timer
	sent    bool
}

// NewStreamFlusher creates a flusher that sends chunks to chat to on ch.
func NewStreamFlusher(ctx context.Context, cfg StreamFlusherConfig, ch domain.Channel, to string, log *logging.Logger) *StreamFlusher {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 300
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	return &StreamFlusher{
		cfg: cfg,
		dst: destination{ctx: ctx, ch: ch, to: to, log: log},
	}
}

// OnDelta buffers text, sends every complete chunk and rearms the idle
// timer for whatever is left.
func (f *StreamFlusher) OnDelta(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending += text
	for {
		cut := nextCut(f.pending, f.cfg.MaxBufferBytes)
		if cut <= 0 {
			break
		}
		f.emitLocked(f.pending[:cut])
		f.pending = f.pending[cut:]
	}

	if f.idle == nil {
		f.idle = time.AfterFunc(f.cfg.IdleTimeout, f.onIdle)
	} else {
		f.idle.Reset(f.cfg.IdleTimeout)
	}
}

func (f *StreamFlusher) onIdle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(f.pending)
	f.pending = ""
}

// Finish stops the idle timer and sends the rest of the buffer. Text
// already on the channel cannot be revised, so final is only used when
// nothing was streamed.
func (f *StreamFlusher) Finish(final string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idle != nil {
		f.idle.Stop()
	}
	if !f.sent && final != "" {
		f.pending = final
	}
	f.emitLocked(f.pending)
	f.pending = ""
}

// Sent returns true if at least one chunk was sent.
func (f *StreamFlusher) Sent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

// emitLocked sends chunk unless it is blank.
func (f *StreamFlusher) emitLocked(chunk string) {
	body := strings.TrimSpace(chunk)
	if body == "" {
		return
	}
	_, _ = f.dst.send(body) // send logs failures
	f.sent = true
}

// nextCut returns how many leading bytes of buf form a complete chunk, or
// 0 when buf should keep accumulating. A full buffer is cut at its last
// space when there is one; otherwise the last paragraph break wins over
// the last sentence end.
func nextCut(buf string, limit int) int {
	if len(buf) >= limit {
		if sp := strings.LastIndexByte(buf[:limit], ' '); sp > 0 {
			return sp + 1
		}
		return limit
	}
	if i := strings.LastIndex(buf, "\n\n"); i >= 0 {
		return i + 2
	}
	return sentenceCut(buf)
}

// sentenceCut returns the offset just past the last '.', '!' or '?' that
// is followed by whitespace, or 0 when that would leave a chunk shorter
// than minSentenceCut.
func sentenceCut(s string) int {
	for i := len(s) - 2; i >= minSentenceCut; i-- {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				return i + 1
			}
		}
	}
	return 0
}
