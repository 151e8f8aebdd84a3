// Package plugin manages optional extensions that subscribe to hook events,
// such as the event publisher.
package plugin

import (
	"context"

	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/logging"
)

// Plugin is an optional extension started alongside the gateway.
type Plugin interface {
	// ID returns a unique identifier (e.g. "events.amqp").
	ID() string

	// Init acquires resources and registers hook handlers.
	Init(ctx context.Context, api API) error

	// Close releases resources.
	Close() error
}

// API is what a plugin receives on Init.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}

// Info summarizes a registered plugin.
type Info struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
	Error  string `json:"error,omitempty"`
}
