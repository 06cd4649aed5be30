// Package hooks dispatches relay lifecycle events to registered handlers.
//
// Handlers registered with On run inline, in registration order, on the
// goroutine that emits the event. Handlers registered with OnAsync run on
// their own goroutine so slow side effects (shell commands, webhooks) never
// hold up an exchange; Wait lets shutdown give them a chance to finish.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/chatrelay/internal/logging"
)

// Lifecycle events.
const (
	EventMessageReceived  = "message_received"
	EventExchangeStart    = "exchange_start"
	EventExchangeComplete = "exchange_complete"
	EventExchangeFailed   = "exchange_failed"
	EventNudgeSent        = "nudge_sent"
	EventLevelUp          = "level_up"
	EventRelayStart       = "relay_start"
	EventRelayStop        = "relay_stop"
)

// AllEvents lists every event the relay emits.
var AllEvents = []string{
	EventMessageReceived,
	EventExchangeStart,
	EventExchangeComplete,
	EventExchangeFailed,
	EventNudgeSent,
	EventLevelUp,
	EventRelayStart,
	EventRelayStop,
}

// Payload is what a handler receives.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. A returned error is logged and never
// reaches the emitter.
type Handler func(ctx context.Context, p Payload) error

type registration struct {
	name  string
	fn    Handler
	async bool
}

// Manager holds registrations per event.
type Manager struct {
	mu     sync.RWMutex
	byName map[string][]registration
	log    *logging.Logger

	inflight sync.WaitGroup
	now      func() time.Time
}

// NewManager returns an empty Manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		byName: make(map[string][]registration),
		log:    log.Sub("hooks"),
		now:    time.Now,
	}
}

// On registers fn to run inline whenever event is emitted.
func (m *Manager) On(event, name string, fn Handler) {
	m.add(event, registration{name: name, fn: fn})
}

// OnAsync registers fn to run in the background whenever event is emitted.
func (m *Manager) OnAsync(event, name string, fn Handler) {
	m.add(event, registration{name: name, fn: fn, async: true})
}

func (m *Manager) add(event string, r registration) {
	m.mu.Lock()
	m.byName[event] = append(m.byName[event], r)
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", r.name).Bool("async", r.async).Msg("hook registered")
}

// Off drops every handler called name from event and reports how many
// were removed.
func (m *Manager) Off(event, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.byName[event][:0:0]
	for _, r := range m.byName[event] {
		if r.name != name {
			kept = append(kept, r)
		}
	}
	removed := len(m.byName[event]) - len(kept)
	if len(kept) == 0 {
		delete(m.byName, event)
	} else {
		m.byName[event] = kept
	}
	return removed
}

// Emit delivers event to its handlers. Inline handlers have all returned
// by the time Emit does; background ones are detached from ctx's
// cancellation but keep its values.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	m.mu.RLock()
	regs := append([]registration(nil), m.byName[event]...)
	m.mu.RUnlock()
	if len(regs) == 0 {
		return
	}

	p := Payload{Event: event, At: m.now(), Data: data}
	for _, r := range regs {
		if !r.async {
			m.call(ctx, r, p)
			continue
		}
		m.inflight.Add(1)
		go func(r registration) {
			defer m.inflight.Done()
			m.call(context.WithoutCancel(ctx), r, p)
		}(r)
	}
}

// call runs one handler, turning a panic into a logged error.
func (m *Manager) call(ctx context.Context, r registration, p Payload) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("panic: %v", v)
			}
		}()
		return r.fn(ctx, p)
	}()

	if err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", r.name).Msg("hook handler failed")
		return
	}
	m.log.Debug().Str("event", p.Event).Str("handler", r.name).Dur("took", time.Since(start)).Msg("hook handled")
}

// Wait blocks until background handlers finish or timeout passes. It
// reports whether they all finished.
func (m *Manager) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Count returns how many handlers listen for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName[event])
}

// Events lists, sorted, the events that have at least one handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.byName))
	for event := range m.byName {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}
