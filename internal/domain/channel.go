package domain

import "context"

// ChannelCapabilities describes what a channel implementation supports.
type ChannelCapabilities struct {
	ChatTypes   []ChatType `json:"chatTypes"`
	Attachments bool       `json:"attachments,omitempty"`
	Reply       bool       `json:"reply,omitempty"`
}

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// TokenSource hands out bearer tokens for fetching protected attachments.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// Channel is the interface that all messaging channel implementations must satisfy.
type Channel interface {
	// ID returns the channel identifier (e.g., "botframework", "irc").
	ID() string

	// Capabilities returns what this channel supports.
	Capabilities() ChannelCapabilities

	// Start connects the channel and begins listening for messages.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message through this channel.
	Send(ctx context.Context, msg OutboundMessage) error

	// OnMessage registers a handler for inbound messages.
	OnMessage(handler func(msg InboundMessage))

	// Status reports whether the channel is connected and its last error.
	Status() ChannelStatus

	// Credentials returns the channel's bearer token provider, or nil when
	// its attachments are served unauthenticated.
	Credentials() TokenSource
}
