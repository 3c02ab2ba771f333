package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// EventPublisher forwards session events to other services.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const publishAttempts = 3

// RoutingKey is the topic an event is published under.
func RoutingKey(t models.EventType) string {
	return "storybook." + string(t)
}

type rabbitMQPublisher struct {
	channel  Channel
	exchange string
	logger   *zap.Logger
}

// NewRabbitMQEventPublisher declares a durable topic exchange on ch and
// publishes events to it.
func NewRabbitMQEventPublisher(ch Channel, exchange string, logger *zap.Logger) (EventPublisher, error) {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, fmt.Errorf("declare exchange '%s': %w", exchange, err)
	}
	logger.Info("Event exchange declared", zap.String("exchange", exchange))
	return &rabbitMQPublisher{channel: ch, exchange: exchange, logger: logger.Named("EventPublisher")}, nil
}

// PublishEvent publishes event without its audio samples.
func (p *rabbitMQPublisher) PublishEvent(ctx context.Context, event models.Event) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	if event.Audio != nil {
		audio := *event.Audio
		audio.Data = nil
		event.Audio = &audio
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	key := RoutingKey(event.Type)
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			p.exchange,
			key,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    event.Timestamp,
				Type:         string(event.Type),
				AppId:        "storybook-server",
				Body:         body,
			},
		)
		if err == nil {
			p.logger.Debug("Event published", zap.String("routing_key", key), zap.String("session_id", event.SessionID))
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.Int("attempt", attempt), zap.String("routing_key", key), zap.Error(err))
		if attempt < publishAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish %s: %w", key, ctx.Err())
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", key, publishAttempts, err)
}

type nopPublisher struct{}

// NopPublisher discards every event.
func NopPublisher() EventPublisher { return nopPublisher{} }

func (nopPublisher) PublishEvent(context.Context, models.Event) error { return nil }

// Connect dials url, retrying a few times while the broker starts up.
func Connect(url string, logger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 5
	retryDelay := 5 * time.Second
	var conn *amqp.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}
