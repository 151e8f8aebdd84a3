// Package events publishes hook events to a RabbitMQ topic exchange as JSON
// envelopes. Publishing is best effort and never affects message handling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/logging"
	"github.com/soyeahso/captionbot/internal/version"
)

const (
	routingPrefix  = "captionbot."
	publishTimeout = 5 * time.Second
)

// Meta is the envelope header.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope is the message body published for every event.
type Envelope struct {
	Meta Meta           `json:"meta"`
	Data map[string]any `json:"data,omitempty"`
}

// RoutingKey returns the topic routing key for an event name.
func RoutingKey(event string) string {
	return routingPrefix + event
}

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends envelopes to a topic exchange over a single channel.
type Publisher struct {
	exchange string
	conn     io.Closer
	log      *logging.Logger

	mu sync.Mutex
	ch amqpChannel
}

// Dial connects to RabbitMQ at url and declares exchange as a durable topic
// exchange.
func Dial(url, exchange string, log *logging.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return newPublisher(conn, ch, exchange, log), nil
}

func newPublisher(conn io.Closer, ch amqpChannel, exchange string, log *logging.Logger) *Publisher {
	return &Publisher{
		exchange: exchange,
		conn:     conn,
		ch:       ch,
		log:      log.Sub("events"),
	}
}

// Publish sends env with the routing key derived from its type.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	if env.Meta.ID == "" {
		env.Meta.ID = uuid.NewString()
	}
	if env.Meta.CorrelationID == "" {
		env.Meta.CorrelationID = env.Meta.ID
	}
	if env.Meta.Time.IsZero() {
		env.Meta.Time = time.Now().UTC()
	}
	if env.Meta.Producer == "" {
		env.Meta.Producer = version.UserAgent()
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(env.Meta.Type), false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         "captionbot",
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Meta.Type, err)
	}
	p.log.Debug().Str("key", RoutingKey(env.Meta.Type)).Str("exchange", p.exchange).Msg("published")
	return nil
}

// Handler adapts the publisher to a hook handler. The activity ID in the
// payload, when present, becomes the correlation ID.
func (p *Publisher) Handler() hooks.Handler {
	return func(ctx context.Context, payload hooks.Payload) error {
		env := Envelope{
			Meta: Meta{Type: payload.Event, Time: payload.At.UTC()},
			Data: payload.Data,
		}
		if id, ok := payload.Data["id"].(string); ok {
			env.Meta.CorrelationID = id
		}
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return p.Publish(ctx, env)
	}
}

// Attach subscribes the publisher to every hook event.
func (p *Publisher) Attach(m *hooks.Manager) {
	m.OnAll("amqp-publisher", p.Handler())
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch.Close()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
