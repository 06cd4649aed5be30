// Package channel keeps the set of platform adapters the relay talks through.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// Registry manages a set of messaging channels.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
	log      *logging.Logger
}

// NewRegistry creates a channel registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]domain.Channel),
		log:      log.Sub("channels"),
	}
}

// Register adds a channel to the registry.
func (r *Registry) Register(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID()] = ch
	r.log.Info().Str("channel", ch.ID()).Msg("channel registered")
}

// Get returns a channel by ID.
func (r *Registry) Get(id string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// List returns all channel IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Statuser is implemented by channels that report connection state.
type Statuser interface {
	Status() domain.ChannelStatus
}

// Status reports every channel sorted by ID. Channels that cannot report
// their own state are listed as running.
func (r *Registry) Status() []domain.ChannelStatus {
	ids := r.List()
	statuses := make([]domain.ChannelStatus, 0, len(ids))
	for _, id := range ids {
		ch, _ := r.Get(id)
		st := domain.ChannelStatus{ChannelID: id, Running: true}
		if sc, ok := ch.(Statuser); ok {
			st = sc.Status()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Run starts every channel and blocks until all of them return. Start
// methods block for the life of the connection; the first one to fail
// cancels the others and its error is returned.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.RLock()
	chans := make([]domain.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range chans {
		r.log.Info().Str("channel", ch.ID()).Msg("starting channel")
		g.Go(func() error {
			if err := ch.Start(gctx); err != nil {
				r.log.Error().Err(err).Str("channel", ch.ID()).Msg("channel exited with error")
				return fmt.Errorf("channel %s: %w", ch.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops every channel in ID order and returns the joined stop
// errors.
func (r *Registry) StopAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.List() {
		ch, ok := r.Get(id)
		if !ok {
			continue
		}
		r.log.Info().Str("channel", id).Msg("stopping channel")
		if err := ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", id).Msg("failed to stop channel")
			errs = append(errs, fmt.Errorf("channel %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
