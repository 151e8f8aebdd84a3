// Package irc implements a text-only captioning channel on IRC using the
// girc library. Channel messages that mention the bot's nick, and direct
// messages to it, are relayed; image URLs are the only thing it can caption.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/logging"
	"github.com/soyeahso/captionbot/internal/version"
)

// maxLineBytes keeps PRIVMSG lines well under the 512 byte protocol limit.
const maxLineBytes = 400

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return "irc" }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{
		ChatTypes: []domain.ChatType{domain.ChatTypeDM, domain.ChatTypeGroup},
	}
}

// Credentials returns nil; IRC carries no protected attachments.
func (c *Channel) Credentials() domain.TokenSource { return nil }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	switch {
	case c.cfg.Port != 0:
		return c.cfg.Port
	case c.cfg.UseTLS:
		return 6697
	default:
		return 6667
	}
}

func (c *Channel) gircConfig() girc.Config {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "captionbot",
		SSL:     c.cfg.UseTLS,
		Version: "captionbot/" + version.Version,
	}

	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}

	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}
	return gircCfg
}

// Start connects to the IRC server and blocks until the connection ends or
// ctx is canceled.
func (c *Channel) Start(ctx context.Context) error {
	client := girc.New(c.gircConfig())
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("captionbot shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a reply to an IRC channel or user, one PRIVMSG per line.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	if msg.To == "" {
		return fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(msg.Body, maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().Str("to", msg.To).Int("lines", len(lines)).Msg("sent IRC message")
	return nil
}

func (c *Channel) nick() string {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client != nil {
		if n := client.GetNick(); n != "" {
			return n
		}
	}
	return c.cfg.Nick
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		client.Cmd.Join(ch)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Channel) onPrivmsg(_ *girc.Client, e girc.Event) {
	msg, ok := c.inbound(e)
	if !ok {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

// inbound maps a PRIVMSG to an InboundMessage. Channel messages must address
// the bot by nick; the mention is stripped from the body.
func (c *Channel) inbound(e girc.Event) (domain.InboundMessage, bool) {
	if e.Source == nil || len(e.Params) == 0 {
		return domain.InboundMessage{}, false
	}
	nick := c.nick()
	if strings.EqualFold(e.Source.Name, nick) {
		return domain.InboundMessage{}, false
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	chatType := domain.ChatTypeDM
	chatID := e.Source.Name
	if e.IsFromChannel() {
		stripped, ok := stripMention(body, nick)
		if !ok {
			return domain.InboundMessage{}, false
		}
		body = stripped
		chatType = domain.ChatTypeGroup
		chatID = e.Params[0]
	}

	return domain.InboundMessage{
		ID:        uuid.New().String(),
		Type:      domain.ActivityMessage,
		ChannelID: "irc",
		From:      e.Source.Name,
		FromName:  e.Source.Name,
		ChatID:    chatID,
		ChatType:  chatType,
		Body:      body,
		Timestamp: time.Now(),
	}, true
}

// stripMention reports whether body addresses nick, either as a leading
// "nick:" / "nick," prefix or as a word anywhere in the text, and returns the
// body with the mention removed.
func stripMention(body, nick string) (string, bool) {
	if nick == "" {
		return "", false
	}
	lower := strings.ToLower(body)
	lnick := strings.ToLower(nick)

	if strings.HasPrefix(lower, lnick) {
		rest := body[len(nick):]
		if rest == "" {
			return "", true
		}
		switch rest[0] {
		case ':', ',', ' ':
			return strings.TrimSpace(rest[1:]), true
		}
	}

	for _, word := range strings.Fields(body) {
		if strings.EqualFold(strings.Trim(word, ":,.!?@"), nick) {
			return strings.TrimSpace(strings.Join(strings.Fields(strings.Replace(body, word, "", 1)), " ")), true
		}
	}
	return "", false
}

// splitMessage breaks a long message into chunks suitable for IRC.
// Each newline produces a separate chunk because PRIVMSG cannot carry
// embedded newlines; lines longer than maxLen are split at the byte boundary.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
