// Package queue publishes billing domain events to RabbitMQ.
// Publishing is best effort: callers log failures and carry on.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	PublishSubscriptionUpdated(ctx context.Context, event SubscriptionUpdatedEvent) error
	Close() error
}

// New connects to url and falls back to a no-op publisher when url is empty or unreachable.
func New(url string) Publisher {
	if url == "" {
		slog.Info("rabbitmq not configured, billing events will not be published")
		return NoopPublisher{}
	}

	p, err := NewAMQPPublisher(url)
	if err != nil {
		slog.Warn("rabbitmq unavailable, billing events will not be published", "error", err)
		return NoopPublisher{}
	}
	return p
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSubscriptionUpdated(context.Context, SubscriptionUpdatedEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

// AMQPPublisher keeps one connection and channel open.
// amqp channels are not safe for concurrent publishing, hence the mutex.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Durable so messages survive broker restarts.
	_, err = ch.QueueDeclare(SubscriptionUpdatedQueue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	slog.Info("rabbitmq publisher ready", "queue", SubscriptionUpdatedQueue)
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) PublishSubscriptionUpdated(ctx context.Context, event SubscriptionUpdatedEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", SubscriptionUpdatedQueue, false, false, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", SubscriptionUpdatedQueue, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chErr := p.ch.Close()
	connErr := p.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

func newPublishing(event SubscriptionUpdatedEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         SubscriptionUpdatedQueue,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
