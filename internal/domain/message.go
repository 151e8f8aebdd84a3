package domain

import (
	"errors"
	"time"
)

// ErrNoImageFound is returned when a message carries neither an image
// attachment nor a recognizable image URL.
var ErrNoImageFound = errors.New("message contains no image attachment or image URL")

// ChatType classifies the conversation context.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// ActivityType is the kind of inbound activity delivered by a transport.
type ActivityType string

const (
	ActivityMessage               ActivityType = "message"
	ActivityDeleteUserData        ActivityType = "deleteUserData"
	ActivityConversationUpdate    ActivityType = "conversationUpdate"
	ActivityContactRelationUpdate ActivityType = "contactRelationUpdate"
	ActivityTyping                ActivityType = "typing"
	ActivityPing                  ActivityType = "ping"
)

// Attachment is a reference to externally hosted binary content.
type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ConversationRef addresses a reply on transports that need more than a
// chat ID (the Bot Framework connector needs the service URL and both
// identities).
type ConversationRef struct {
	ServiceURL     string `json:"serviceUrl,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	IsGroup        bool   `json:"isGroup,omitempty"`
	BotID          string `json:"botId,omitempty"`
	BotName        string `json:"botName,omitempty"`
	UserID         string `json:"userId,omitempty"`
	UserName       string `json:"userName,omitempty"`
}

// InboundMessage is a message received from a channel.
type InboundMessage struct {
	ID           string          `json:"id"`
	Type         ActivityType    `json:"type"`
	ChannelID    string          `json:"channelId"`
	From         string          `json:"from"`
	FromName     string          `json:"fromName,omitempty"`
	ChatID       string          `json:"chatId"`
	ChatType     ChatType        `json:"chatType"`
	Body         string          `json:"body"`
	Timestamp    time.Time       `json:"timestamp"`
	Attachments  []Attachment    `json:"attachments,omitempty"`
	Conversation ConversationRef `json:"conversation,omitzero"`
}

// OutboundMessage is a message to be sent via a channel.
type OutboundMessage struct {
	ChannelID    string          `json:"channelId"`
	To           string          `json:"to"`
	Body         string          `json:"body"`
	ReplyToID    string          `json:"replyToId,omitempty"`
	Conversation ConversationRef `json:"conversation,omitzero"`
}

// Reply builds the outbound reply for msg carrying body.
func (m InboundMessage) Reply(body string) OutboundMessage {
	return OutboundMessage{
		ChannelID:    m.ChannelID,
		To:           m.ChatID,
		Body:         body,
		ReplyToID:    m.ID,
		Conversation: m.Conversation,
	}
}
