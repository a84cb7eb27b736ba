package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cvbank/cvbank-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer handles consuming events from RabbitMQ. Deliveries are handled one
// at a time on a single goroutine; after a broker reconnect the consumer
// re-declares its queue and bindings and resumes.
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	bindings  []binding
	handlers  map[string]MessageHandler
	logger    *logger.Logger
	done      chan struct{}
}

type binding struct {
	exchange, pattern string
}

// NewConsumer declares queueName and returns a consumer for it.
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log.WithComponent("consumer"),
		done:      make(chan struct{}),
	}, nil
}

// Subscribe binds the queue to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.bind(binding{exchange, routingKeyPattern}); err != nil {
		return err
	}
	c.bindings = append(c.bindings, binding{exchange, routingKeyPattern})

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")
	return nil
}

func (c *Consumer) bind(b binding) error {
	if err := c.rmq.DeclareExchange(b.exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.rmq.BindQueue(c.queueName, b.exchange, b.pattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start begins consuming until ctx is cancelled. Only the first subscription
// has to succeed synchronously.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.consume()
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		defer close(c.done)
		for {
			c.drain(ctx, msgs)
			if ctx.Err() != nil {
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			}

			c.logger.Warn().Str("queue", c.queueName).Msg("delivery channel closed, resubscribing")
			msgs = c.resubscribe(ctx)
			if msgs == nil {
				return
			}
		}
	}()

	return nil
}

// Done is closed once the consume loop has returned.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	ch, err := c.rmq.liveChannel()
	if err != nil {
		return nil, err
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// drain returns when ctx ends or the delivery channel closes.
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) resubscribe(ctx context.Context) <-chan amqp.Delivery {
	delay := max(c.rmq.config.ReconnectDelay, time.Second)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if _, err := c.rmq.DeclareQueue(c.queueName); err != nil {
			c.logger.Debug().Err(err).Msg("queue not ready")
			continue
		}
		rebound := true
		for _, b := range c.bindings {
			if err := c.bind(b); err != nil {
				rebound = false
				break
			}
		}
		if !rebound {
			continue
		}
		msgs, err := c.consume()
		if err != nil {
			continue
		}
		c.logger.Info().Str("queue", c.queueName).Msg("consumer resumed")
		return msgs
	}
}

// handleMessage acks on success. Handler failures are rejected to the dead
// letter queue without requeue.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.MessageId).Msg("failed to unmarshal event")
		msg.Reject(false)
		return
	}

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		msg.Ack(false)
		return
	}

	log := c.logger.With().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Logger()
	log.Debug().Msg("processing event")

	if err := handler(WithCorrelationID(ctx, event.CorrelationID), &event); err != nil {
		log.Error().Err(err).Msg("failed to process event, sending to DLQ")
		msg.Reject(false)
		return
	}

	msg.Ack(false)
}
