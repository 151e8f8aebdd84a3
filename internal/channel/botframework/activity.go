package botframework

import (
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/captionbot/internal/domain"
)

// Activity is the subset of the Bot Framework v3 activity schema the bot
// reads and writes.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	Timestamp    string              `json:"timestamp,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	From         ChannelAccount      `json:"from"`
	Conversation ConversationAccount `json:"conversation"`
	Recipient    ChannelAccount      `json:"recipient"`
	TextFormat   string              `json:"textFormat,omitempty"`
	Text         string              `json:"text,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
}

// ChannelAccount identifies a user or bot.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Attachment is a file or card attached to an activity.
type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Name        string `json:"name,omitempty"`
}

// toInbound maps an incoming activity to the transport-neutral message.
func toInbound(a Activity, channelID string, now time.Time) domain.InboundMessage {
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}

	ts := now
	if a.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, a.Timestamp); err == nil {
			ts = parsed
		}
	}

	chatType := domain.ChatTypeDM
	if a.Conversation.IsGroup {
		chatType = domain.ChatTypeGroup
	}

	var attachments []domain.Attachment
	for _, att := range a.Attachments {
		attachments = append(attachments, domain.Attachment{
			ContentType: att.ContentType,
			ContentURL:  att.ContentURL,
			Name:        att.Name,
		})
	}

	return domain.InboundMessage{
		ID:          id,
		Type:        domain.ActivityType(a.Type),
		ChannelID:   channelID,
		From:        a.From.ID,
		FromName:    a.From.Name,
		ChatID:      a.Conversation.ID,
		ChatType:    chatType,
		Body:        a.Text,
		Timestamp:   ts,
		Attachments: attachments,
		Conversation: domain.ConversationRef{
			ServiceURL:     a.ServiceURL,
			ConversationID: a.Conversation.ID,
			IsGroup:        a.Conversation.IsGroup,
			BotID:          a.Recipient.ID,
			BotName:        a.Recipient.Name,
			UserID:         a.From.ID,
			UserName:       a.From.Name,
		},
	}
}

// replyActivity builds the message activity answering msg, with the
// identities of the original activity swapped.
func replyActivity(msg domain.OutboundMessage) Activity {
	ref := msg.Conversation
	convID := ref.ConversationID
	if convID == "" {
		convID = msg.To
	}
	return Activity{
		Type:         string(domain.ActivityMessage),
		From:         ChannelAccount{ID: ref.BotID, Name: ref.BotName},
		Recipient:    ChannelAccount{ID: ref.UserID, Name: ref.UserName},
		Conversation: ConversationAccount{ID: convID, IsGroup: ref.IsGroup},
		TextFormat:   "plain",
		Text:         msg.Body,
		ReplyToID:    msg.ReplyToID,
	}
}
