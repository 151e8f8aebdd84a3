// Package dispatch turns an inbound message into a caption reply: it resolves
// the image reference, fetches attachment content when needed, calls the
// captioning service and sends exactly one reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/soyeahso/captionbot/internal/caption"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/logging"
	"github.com/soyeahso/captionbot/internal/resolver"
)

// Fixed reply texts.
const (
	ReplyNoImage = "Please send me an image or an image URL"
	ReplyFailure = "Sorry... Error. Try again later."
)

const defaultTimeout = 30 * time.Second

// ErrNoCredentials is returned when an attachment needs a bearer token but
// the originating transport offers none.
var ErrNoCredentials = errors.New("attachment requires credentials but the channel has none")

// CredentialProvider is implemented by anything that may hold a token source
// for protected attachments, typically a domain.Channel.
type CredentialProvider interface {
	Credentials() domain.TokenSource
}

// Dispatcher runs the per-message captioning pipeline. It holds no
// per-message state and is safe for concurrent use.
type Dispatcher struct {
	captioner caption.Client
	fetcher   *Fetcher
	hooks     *hooks.Manager
	timeout   time.Duration
	log       *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHooks emits pipeline events on m.
func WithHooks(m *hooks.Manager) Option {
	return func(d *Dispatcher) { d.hooks = m }
}

// WithTimeout bounds each outbound call (fetch, caption, send).
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithHTTPClient sets the client used to download attachments.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.fetcher = NewFetcher(client) }
}

// New creates a Dispatcher using captioner for all caption requests.
func New(captioner caption.Client, log *logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		captioner: captioner,
		fetcher:   NewFetcher(nil),
		timeout:   defaultTimeout,
		log:       log.Sub("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReplyFor maps the outcome of Describe to the text sent back to the user.
func ReplyFor(text string, err error) string {
	switch {
	case err == nil:
		return text
	case errors.Is(err, domain.ErrNoImageFound):
		return ReplyNoImage
	default:
		return ReplyFailure
	}
}

// Handle processes one inbound activity from ch. Message activities always
// produce exactly one reply; every other activity type is ignored. The
// returned error only reports a failed reply delivery.
func (d *Dispatcher) Handle(ctx context.Context, ch domain.Channel, msg domain.InboundMessage) error {
	switch msg.Type {
	case domain.ActivityMessage:
		return d.handleMessage(ctx, ch, msg)
	case domain.ActivityDeleteUserData:
	case domain.ActivityConversationUpdate:
	case domain.ActivityContactRelationUpdate:
	case domain.ActivityTyping:
	case domain.ActivityPing:
	default:
		d.log.Debug().Str("type", string(msg.Type)).Str("channel", msg.ChannelID).Msg("ignoring unknown activity type")
	}
	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, ch domain.Channel, msg domain.InboundMessage) error {
	log := d.log.With("activity", msg.ID)
	log.Info().
		Str("channel", msg.ChannelID).
		Str("from", msg.From).
		Int("attachments", len(msg.Attachments)).
		Msg("message received")

	d.hooks.EmitAsync(ctx, hooks.EventMessageReceived, map[string]any{
		"id":          msg.ID,
		"channel":     msg.ChannelID,
		"from":        msg.From,
		"attachments": len(msg.Attachments),
	})

	text, err := d.Describe(ctx, msg, ch)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoImageFound):
		log.Info().Msg("no image in message")
	default:
		log.Error().Err(err).Msg("caption failed")
	}

	reply := msg.Reply(ReplyFor(text, err))
	d.hooks.EmitAsync(ctx, hooks.EventMessageSending, map[string]any{
		"id":      msg.ID,
		"channel": reply.ChannelID,
		"to":      reply.To,
		"body":    reply.Body,
	})

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := ch.Send(sendCtx, reply); err != nil {
		log.Error().Err(err).Str("channel", reply.ChannelID).Str("to", reply.To).Msg("failed to send reply")
		return fmt.Errorf("send reply: %w", err)
	}

	log.Info().Str("channel", reply.ChannelID).Str("to", reply.To).Msg("reply sent")
	return nil
}

// Describe resolves the image in msg and returns the caption text. creds is
// consulted only when the attachment host requires authentication; it may be
// nil.
func (d *Dispatcher) Describe(ctx context.Context, msg domain.InboundMessage, creds CredentialProvider) (string, error) {
	ref, err := resolver.Resolve(msg)
	if err != nil {
		return "", err
	}

	d.hooks.EmitAsync(ctx, hooks.EventImageResolved, map[string]any{
		"id":           msg.ID,
		"source":       string(ref.Source),
		"strategy":     string(ref.Strategy),
		"url":          ref.URL,
		"requiresAuth": ref.RequiresAuth,
	})

	start := time.Now()
	var text string
	switch ref.Source {
	case domain.SourceContent:
		text, err = d.captionContent(ctx, ref, creds)
	default:
		text, err = d.captionURL(ctx, ref)
	}

	if err != nil {
		d.hooks.EmitAsync(ctx, hooks.EventCaptionFailed, map[string]any{
			"id":       msg.ID,
			"provider": d.captioner.Name(),
			"url":      ref.URL,
			"error":    err.Error(),
		})
		return "", err
	}

	d.hooks.EmitAsync(ctx, hooks.EventCaptionCompleted, map[string]any{
		"id":         msg.ID,
		"provider":   d.captioner.Name(),
		"url":        ref.URL,
		"caption":    text,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return text, nil
}

func (d *Dispatcher) captionURL(ctx context.Context, ref domain.ImageReference) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.captioner.CaptionURL(ctx, ref.URL)
}

// captionContent fetches the attachment and streams it to the captioner.
// The fetch deadline covers the token and the response headers; the body is
// read by the captioner and lives until the caption deadline.
func (d *Dispatcher) captionContent(ctx context.Context, ref domain.ImageReference, creds CredentialProvider) (string, error) {
	var token string
	if ref.RequiresAuth {
		var src domain.TokenSource
		if creds != nil {
			src = creds.Credentials()
		}
		if src == nil {
			return "", ErrNoCredentials
		}
		tokenCtx, cancelToken := context.WithTimeout(ctx, d.timeout)
		var err error
		token, err = src.BearerToken(tokenCtx)
		cancelToken()
		if err != nil {
			return "", fmt.Errorf("acquire token: %w", err)
		}
	}

	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()

	fetchTimer := time.AfterFunc(d.timeout, cancelReq)
	body, err := d.fetcher.Open(reqCtx, ref, token)
	expired := !fetchTimer.Stop()
	if err != nil {
		if expired {
			return "", fmt.Errorf("fetch %s: %w", ref.URL, context.DeadlineExceeded)
		}
		return "", err
	}
	defer body.Close()
	if expired {
		return "", fmt.Errorf("fetch %s: %w", ref.URL, context.DeadlineExceeded)
	}

	captionCtx, cancelCaption := context.WithTimeout(ctx, d.timeout)
	defer cancelCaption()
	stop := context.AfterFunc(captionCtx, cancelReq)
	defer stop()

	return d.captioner.CaptionStream(captionCtx, body, ref.ContentType)
}
