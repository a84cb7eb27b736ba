package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterExchange receives messages rejected by consumers. Each queue's
// dead letters are routed to "dlq.<queue>".
const DeadLetterExchange = "cvbank.dlx"

// ErrNotConnected is returned while the broker connection is being re-established.
var ErrNotConnected = errors.New("rabbitmq: not connected")

// RabbitMQ owns one connection and one channel. When the broker drops the
// connection it is re-dialed in the background with cfg.ReconnectDelay
// between attempts.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *logger.Logger
	mu      sync.RWMutex
	closed  bool
}

// New dials RabbitMQ, trying up to cfg.MaxRetries times.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log.WithComponent("rabbitmq"),
	}

	attempts := max(cfg.MaxRetries, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = rmq.connect(); err == nil {
			return rmq, nil
		}
		if i < attempts {
			rmq.logger.Warn().Err(err).Int("attempt", i).Msg("RabbitMQ not ready, retrying")
			time.Sleep(cfg.ReconnectDelay)
		}
	}
	return nil, err
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(max(r.config.PrefetchCount, 1), 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	r.mu.Lock()
	r.conn, r.channel = conn, ch
	r.mu.Unlock()

	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	r.logger.Info().Str("url", config.RedactURL(r.config.URL)).Msg("connected to RabbitMQ")
	return nil
}

// watch re-dials after an unexpected connection loss.
func (r *RabbitMQ) watch(closed <-chan *amqp.Error) {
	reason, ok := <-closed
	if !ok || reason == nil {
		return
	}

	r.mu.Lock()
	shutdown := r.closed
	r.channel = nil
	r.mu.Unlock()
	if shutdown {
		return
	}

	r.logger.Warn().Str("reason", reason.Reason).Msg("RabbitMQ connection lost, reconnecting")
	for {
		time.Sleep(r.config.ReconnectDelay)

		r.mu.RLock()
		shutdown = r.closed
		r.mu.RUnlock()
		if shutdown {
			return
		}

		if err := r.connect(); err != nil {
			r.logger.Warn().Err(err).Msg("RabbitMQ reconnect failed")
			continue
		}
		return
	}
}

// Channel returns the current channel, or nil while reconnecting.
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

func (r *RabbitMQ) liveChannel() (*amqp.Channel, error) {
	ch := r.Channel()
	if ch == nil || ch.IsClosed() {
		return nil, ErrNotConnected
	}
	return ch, nil
}

// Close closes the RabbitMQ connection and stops reconnecting.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}

	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health returns the health status of RabbitMQ
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]string{"status": "up"}
	if r.conn == nil || r.conn.IsClosed() || r.channel == nil {
		status["status"] = "down"
		status["error"] = "connection closed"
	}
	return status
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	ch, err := r.liveChannel()
	if err != nil {
		return err
	}
	return ch.ExchangeDeclare(name, "topic", true, false, false, false, nil)
}

// DeclareQueue declares a durable queue whose rejected messages go to its own
// dead letter queue.
func (r *RabbitMQ) DeclareQueue(name string) (amqp.Queue, error) {
	ch, err := r.liveChannel()
	if err != nil {
		return amqp.Queue{}, err
	}
	if err := declareDeadLetterQueue(ch, name); err != nil {
		return amqp.Queue{}, err
	}

	return ch.QueueDeclare(name, true, false, false, false, queueArgs(name))
}

func queueArgs(name string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": name,
	}
}

func declareDeadLetterQueue(ch *amqp.Channel, queueName string) error {
	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX exchange: %w", err)
	}

	dlq := "dlq." + queueName
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(dlq, queueName, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}
	return nil
}

// BindQueue binds a queue to an exchange with a routing key pattern
func (r *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	ch, err := r.liveChannel()
	if err != nil {
		return err
	}
	return ch.QueueBind(queueName, routingKey, exchange, false, nil)
}
