// Package mq mirrors ride lifecycle events to a RabbitMQ topic exchange so
// collaborators outside the process (billing, analytics, push fan-out) can
// follow rides without polling.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch/internal/domain"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the body published for every event.
type Message struct {
	Type    domain.EventType `json:"type"`
	RideID  string           `json:"ride_id"`
	Payload map[string]any   `json:"payload,omitempty"`
	At      time.Time        `json:"at"`
}

// Publisher publishes events with routing key "ride.<type>".
type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
}

// NewPublisher opens a channel on conn and declares the exchange.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisherWithChannel(ch, exchange)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisherWithChannel declares a durable topic exchange on ch.
func NewPublisherWithChannel(ch Channel, exchange string) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

// RoutingKey returns the routing key for an event type.
func RoutingKey(t domain.EventType) string {
	return "ride." + string(t)
}

// PublishEvent publishes evt as a persistent JSON message.
func (p *Publisher) PublishEvent(ctx context.Context, evt domain.Event) error {
	body, err := json.Marshal(Message{
		Type:    evt.Type,
		RideID:  evt.RideID,
		Payload: evt.Payload,
		At:      evt.At,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(evt.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.At,
		Type:         string(evt.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s for ride %s: %w", evt.Type, evt.RideID, err)
	}
	return nil
}

// Close closes the channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
