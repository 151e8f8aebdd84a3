// Package routing connects messaging channels to the caption dispatcher.
package routing

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/captionbot/internal/channel"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/logging"
)

// Handler processes one inbound activity from ch.
type Handler interface {
	Handle(ctx context.Context, ch domain.Channel, msg domain.InboundMessage) error
}

// Router routes inbound activities to the dispatcher on their own goroutine
// and replies through the originating channel.
type Router struct {
	channels *channel.Registry
	handler  Handler
	log      *logging.Logger
	inflight sync.WaitGroup
}

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, handler Handler, log *logging.Logger) *Router {
	return &Router{
		channels: channels,
		handler:  handler,
		log:      log.Sub("routing"),
	}
}

// HandleInbound processes an inbound activity synchronously.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	ch, ok := r.channels.Get(msg.ChannelID)
	if !ok {
		r.log.Error().Str("channel", msg.ChannelID).Str("id", msg.ID).Msg("channel not found for inbound message")
		return
	}

	r.log.Debug().
		Str("channel", msg.ChannelID).
		Str("type", string(msg.Type)).
		Str("from", msg.From).
		Str("chatId", msg.ChatID).
		Msg("routing inbound activity")

	if err := r.handler.Handle(ctx, ch, msg); err != nil {
		r.log.Warn().Err(err).Str("channel", msg.ChannelID).Str("id", msg.ID).Msg("activity handling failed")
	}
}

// Wire registers the router on all channels. Each activity is handled on
// its own goroutine so the transport can acknowledge immediately. Handling
// keeps ctx's values but outlives its cancellation; use Wait to drain.
func (r *Router) Wire(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for _, ch := range r.channels.All() {
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.HandleInbound(base, msg)
			}()
		})
		r.log.Debug().Str("channel", ch.ID()).Msg("wired message handler")
	}
}

// Wait blocks until in-flight activities finish or timeout elapses. It
// reports whether everything finished.
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
