package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/logging"
)

type entry struct {
	plugin  Plugin
	active  bool
	initErr error
}

// Registry runs plugin lifecycles in registration order. A plugin that
// fails to initialize stays inactive; the others are unaffected.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	hooks   *hooks.Manager
	log     *logging.Logger
}

// NewRegistry creates a plugin registry whose plugins share hm.
func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{hooks: hm, log: log.Sub("plugins")}
}

// Register adds p without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.plugin.ID() == p.ID() {
			return fmt.Errorf("plugin already registered: %s", p.ID())
		}
	}
	r.entries = append(r.entries, &entry{plugin: p})
	r.log.Debug().Str("id", p.ID()).Msg("plugin registered")
	return nil
}

// InitAll initializes every registered plugin and returns the joined
// failures.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, e := range r.entries {
		if e.active {
			continue
		}
		id := e.plugin.ID()
		e.initErr = e.plugin.Init(ctx, API{Hooks: r.hooks, Log: r.log.Sub(id)})
		if e.initErr != nil {
			errs = append(errs, fmt.Errorf("init plugin %s: %w", id, e.initErr))
			continue
		}
		e.active = true
		r.log.Info().Str("id", id).Msg("plugin active")
	}
	return errors.Join(errs...)
}

// CloseAll closes active plugins in reverse registration order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.active {
			continue
		}
		e.active = false
		if err := e.plugin.Close(); err != nil {
			r.log.Error().Err(err).Str("id", e.plugin.ID()).Msg("plugin close error")
		}
	}
}

// Get returns the plugin with id, or nil.
func (r *Registry) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.plugin.ID() == id {
			return e.plugin
		}
	}
	return nil
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Info reports every plugin in registration order.
func (r *Registry) Info() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		info := Info{ID: e.plugin.ID(), Active: e.active}
		if e.initErr != nil {
			info.Error = e.initErr.Error()
		}
		out = append(out, info)
	}
	return out
}
