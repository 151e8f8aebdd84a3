// Package channel provides channel management for messaging integrations.
package channel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/logging"
)

// Registry manages a set of messaging channels.
type Registry struct {
	mu        sync.RWMutex
	channels  map[string]domain.Channel
	startErrs map[string]error
	log       *logging.Logger
}

// NewRegistry creates a channel registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels:  make(map[string]domain.Channel),
		startErrs: make(map[string]error),
		log:       log.Sub("channels"),
	}
}

// Register adds a channel to the registry. IDs must be unique.
func (r *Registry) Register(ch domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[ch.ID()]; exists {
		return fmt.Errorf("channel %q already registered", ch.ID())
	}
	r.channels[ch.ID()] = ch
	r.log.Info().Str("channel", ch.ID()).Msg("channel registered")
	return nil
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
	slices.Sort(ids)
	return ids
}

// All returns the registered channels ordered by ID.
func (r *Registry) All() []domain.Channel {
	ids := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(ids))
	for _, id := range ids {
		if ch, ok := r.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Status returns the status of all registered channels ordered by ID. A
// failed Start is reported as LastError when the channel has none of its own.
func (r *Registry) Status() []domain.ChannelStatus {
	channels := r.All()

	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]domain.ChannelStatus, 0, len(channels))
	for _, ch := range channels {
		st := ch.Status()
		st.ChannelID = ch.ID()
		if err := r.startErrs[ch.ID()]; err != nil && st.LastError == "" {
			st.LastError = err.Error()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// StartAll starts all registered channels in background goroutines.
// Channel Start methods may block (e.g. IRC's Connect), so each is
// launched concurrently to avoid preventing subsequent initialization.
func (r *Registry) StartAll(ctx context.Context) {
	for _, ch := range r.All() {
		id := ch.ID()
		r.log.Info().Str("channel", id).Msg("starting channel")
		go func() {
			err := ch.Start(ctx)
			r.mu.Lock()
			r.startErrs[id] = err
			r.mu.Unlock()
			if err != nil {
				r.log.Error().Err(err).Str("channel", id).Msg("channel exited with error")
			}
		}()
	}
}

// StopAll stops all registered channels.
func (r *Registry) StopAll(ctx context.Context) {
	for _, ch := range r.All() {
		r.log.Info().Str("channel", ch.ID()).Msg("stopping channel")
		if err := ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", ch.ID()).Msg("failed to stop channel")
		}
	}
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
