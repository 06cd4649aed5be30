// Package relay drives one streamed exchange with the chat backend.
package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// InterruptedError reports a stream that stopped before its terminal
// marker. Partial holds the text received until then.
type InterruptedError struct {
	Partial string
	Cause   error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Cause)
}

// Unwrap exposes both llm.ErrStreamInterrupted and the underlying cause.
func (e *InterruptedError) Unwrap() []error {
	return []error{llm.ErrStreamInterrupted, e.Cause}
}

// errIdle is the cause recorded when the backend stops sending bytes.
var errIdle = errors.New("no data from backend within idle timeout")

// Config controls one Relay.
type Config struct {
	Model          string
	TypingInterval time.Duration // how often onTyping fires
	IdleTimeout    time.Duration // abort when the backend sends nothing for this long
}

// Relay sends context plus a new user message to a backend and streams the reply.
type Relay struct {
	client llm.Client
	cfg    Config
	log    *logging.Logger
}

// New creates a relay over client.
func New(client llm.Client, cfg Config, log *logging.Logger) *Relay {
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = 8 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return &Relay{client: client, cfg: cfg, log: log.Sub("relay")}
}

// Exchange runs one request/stream/response cycle.
//
// onChunk receives each text fragment in arrival order. onTyping fires once
// immediately and then every TypingInterval until Exchange returns,
// independent of chunk arrival. Either callback may be nil.
//
// On success the cleaned reply is returned. On failure the text accumulated
// so far is returned alongside an error matching llm.ErrBackendUnavailable,
// llm.ErrBackendProtocol or llm.ErrStreamInterrupted.
func (r *Relay) Exchange(ctx context.Context, history []llm.Message, userText string, onChunk func(string), onTyping func()) (string, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The idle deadline covers the whole exchange, including the wait for
	// response headers, and is pushed back by every event.
	idle := time.AfterFunc(r.cfg.IdleTimeout, func() { cancel(errIdle) })
	defer idle.Stop()

	stopTyping := r.startTyping(ctx, onTyping)
	defer stopTyping()

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	var buf strings.Builder
	stalled := func() (string, error) {
		r.log.Warn().Dur("timeout", r.cfg.IdleTimeout).Int("partial", buf.Len()).Msg("backend stream stalled")
		return buf.String(), &InterruptedError{Partial: buf.String(), Cause: errIdle}
	}

	start := time.Now()
	events, err := r.client.Stream(ctx, llm.CompletionRequest{Model: r.cfg.Model, Messages: messages})
	if err != nil {
		if errors.Is(context.Cause(ctx), errIdle) {
			return stalled()
		}
		if !errors.Is(err, llm.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err)
		}
		return "", err
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				if errors.Is(context.Cause(ctx), errIdle) {
					return stalled()
				}
				return buf.String(), &InterruptedError{Partial: buf.String(), Cause: errors.New("stream closed without terminal event")}
			}
			idle.Reset(r.cfg.IdleTimeout)

			switch evt.Type {
			case llm.EventDelta:
				if evt.Content == "" {
					continue
				}
				buf.WriteString(evt.Content)
				if onChunk != nil {
					onChunk(evt.Content)
				}

			case llm.EventDone:
				reply := CleanReply(buf.String())
				if reply == "" {
					return "", fmt.Errorf("%w: empty response", llm.ErrBackendProtocol)
				}
				r.log.Debug().
					Dur("duration", time.Since(start)).
					Int("chars", len(reply)).
					Msg("stream complete")
				return reply, nil

			case llm.EventError:
				cause := evt.Err
				if cause == nil {
					cause = fmt.Errorf("%w: %s", llm.ErrBackendProtocol, evt.Error)
				}
				if errors.Is(context.Cause(ctx), errIdle) {
					return stalled()
				}
				if errors.Is(cause, llm.ErrStreamInterrupted) {
					return buf.String(), &InterruptedError{Partial: buf.String(), Cause: cause}
				}
				return buf.String(), cause
			}

		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errIdle) {
				return stalled()
			}
			return buf.String(), &InterruptedError{Partial: buf.String(), Cause: ctx.Err()}
		}
	}
}

// startTyping runs the typing ticker until the returned stop func is called.
// stop waits for the goroutine so no tick fires after Exchange returns.
func (r *Relay) startTyping(ctx context.Context, onTyping func()) (stop func()) {
	if onTyping == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.TypingInterval)
		defer ticker.Stop()
		onTyping()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				onTyping()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

var speakerPrefix = regexp.MustCompile(`(?mi)^\s*(user|assistant)\s*:\s*`)

// CleanReply trims the reply and strips "User:" / "Assistant:" prefixes some
// models echo at the start of lines.
func CleanReply(s string) string {
	return strings.TrimSpace(speakerPrefix.ReplaceAllString(s, ""))
}
