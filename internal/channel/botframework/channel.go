// Package botframework implements the Bot Framework v3 transport: an HTTP
// webhook that receives activities and a connector client that posts
// replies back to the conversation's service URL.
package botframework

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/logging"
	"github.com/soyeahso/captionbot/internal/version"
)

const (
	channelID       = "botframework"
	maxActivitySize = 1 << 20
)

// ErrUntrustedServiceURL is returned by Send when an authenticated reply
// would go to a service URL outside the trusted connector hosts.
var ErrUntrustedServiceURL = errors.New("botframework: untrusted service URL")

// Channel implements domain.Channel for the Bot Framework connector.
type Channel struct {
	cfg    config.BotFrameworkConfig
	creds  *TokenSource // nil without an app ID
	client *http.Client
	log    *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// Option configures a Channel.
type Option func(*Channel)

// WithHTTPClient sets the client used for connector and token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Channel) { c.client = client }
}

// New creates a Bot Framework channel. Without an app ID (local emulator)
// replies are sent unauthenticated and no credentials are offered.
func New(cfg config.BotFrameworkConfig, log *logging.Logger, opts ...Option) *Channel {
	if cfg.Path == "" {
		cfg.Path = "/api/messages"
	}
	if len(cfg.TrustedServiceHosts) == 0 {
		cfg.TrustedServiceHosts = config.DefaultTrustedServiceHosts
	}
	c := &Channel{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.Sub("botframework"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.AppID != "" {
		c.creds = NewTokenSource(cfg, c.client)
	}
	return c
}

func (c *Channel) ID() string { return channelID }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{
		ChatTypes:   []domain.ChatType{domain.ChatTypeDM, domain.ChatTypeGroup},
		Attachments: true,
		Reply:       true,
	}
}

// Credentials returns the connector token source, or nil in emulator mode.
func (c *Channel) Credentials() domain.TokenSource {
	if c.creds == nil {
		return nil
	}
	return c.creds
}

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Pattern is the ServeMux pattern the webhook must be mounted on.
func (c *Channel) Pattern() string {
	return "POST " + c.cfg.Path
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: channelID,
		Connected: c.running,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start marks the webhook as accepting activities. The HTTP listener itself
// belongs to the gateway.
func (c *Channel) Start(_ context.Context) error {
	c.mu.Lock()
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("path", c.cfg.Path).
		Bool("authenticated", c.creds != nil).
		Msg("bot framework webhook ready")
	return nil
}

// Stop rejects further activities.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// ServeHTTP receives one activity. The handler is invoked synchronously and
// is expected to hand the work off; the connector only needs the 200.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c.mu.RLock()
	running, handler := c.running, c.handler
	c.mu.RUnlock()
	if !running {
		http.Error(w, "channel not running", http.StatusServiceUnavailable)
		return
	}

	var activity Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivitySize)).Decode(&activity); err != nil {
		c.log.Warn().Err(err).Msg("invalid activity payload")
		http.Error(w, "invalid activity", http.StatusBadRequest)
		return
	}

	msg := toInbound(activity, channelID, c.now())

	c.log.Debug().
		Str("type", activity.Type).
		Str("id", msg.ID).
		Str("platform", activity.ChannelID).
		Str("conversation", msg.ChatID).
		Msg("activity received")

	if handler != nil {
		handler(msg)
	}
	w.WriteHeader(http.StatusOK)
}

// Send posts a reply activity to the conversation's connector endpoint.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	endpoint, err := replyURL(msg)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(replyActivity(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if c.creds != nil {
		if !c.trustedServiceURL(msg.Conversation.ServiceURL) {
			err := fmt.Errorf("%w: %s", ErrUntrustedServiceURL, msg.Conversation.ServiceURL)
			c.setLastError(err)
			return err
		}
		token, err := c.creds.BearerToken(ctx)
		if err != nil {
			c.setLastError(err)
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.setLastError(err)
		return fmt.Errorf("connector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("connector error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		c.setLastError(err)
		return err
	}

	c.log.Debug().Str("conversation", msg.Conversation.ConversationID).Msg("reply posted")
	return nil
}

// trustedServiceURL reports whether the connector token may be sent to
// serviceURL: https only, and the host equals a trusted host or is one of
// its subdomains.
func (c *Channel) trustedServiceURL(serviceURL string) bool {
	u, err := url.Parse(serviceURL)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, trusted := range c.cfg.TrustedServiceHosts {
		trusted = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(trusted), "."))
		if trusted == "" {
			continue
		}
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}

func (c *Channel) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// replyURL builds {serviceUrl}/v3/conversations/{id}/activities[/{replyToId}].
func replyURL(msg domain.OutboundMessage) (string, error) {
	ref := msg.Conversation
	if ref.ServiceURL == "" {
		return "", fmt.Errorf("botframework: reply has no service URL")
	}
	convID := ref.ConversationID
	if convID == "" {
		convID = msg.To
	}
	if convID == "" {
		return "", fmt.Errorf("botframework: reply has no conversation")
	}

	u := strings.TrimRight(ref.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(convID) + "/activities"
	if msg.ReplyToID != "" {
		u += "/" + url.PathEscape(msg.ReplyToID)
	}
	return u, nil
}
