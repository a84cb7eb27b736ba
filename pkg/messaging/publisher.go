package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cvbank/cvbank-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes events to one topic exchange. It looks up the broker
// channel on every call so it keeps working across reconnects.
type Publisher struct {
	rmq      *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher declares exchange and returns a publisher stamping events with source.
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rmq:      rmq,
		exchange: exchange,
		source:   source,
		logger:   log.WithComponent("publisher"),
	}, nil
}

// Publish sends data as an event of eventType, which is also the routing key.
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	msg, event, err := encodeEvent(ctx, p.source, eventType, data)
	if err != nil {
		return err
	}

	ch, err := p.rmq.liveChannel()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	if err := ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("event published")

	return nil
}

// encodeEvent wraps data in an Event. Without a correlation id in ctx the
// event starts its own chain.
func encodeEvent(ctx context.Context, source, eventType string, data interface{}) (amqp.Publishing, *Event, error) {
	event, err := NewEvent(eventType, source, getCorrelationID(ctx), data)
	if err != nil {
		return amqp.Publishing{}, nil, fmt.Errorf("failed to create event: %w", err)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = event.ID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: event.CorrelationID,
		MessageId:     event.ID,
		Type:          eventType,
		AppId:         source,
		Timestamp:     event.Timestamp,
		Body:          body,
	}, event, nil
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
