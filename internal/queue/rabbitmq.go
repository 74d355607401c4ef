package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns the broker connection and declares the alert topology once per connection.
type RabbitMQ struct {
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	declared bool
}

func NewRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := r.connection(dialCtx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// Healthy reports whether the broker connection is open.
func (r *RabbitMQ) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && !r.conn.IsClosed()
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := r.connection(ctx)
		if err != nil {
			return nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			// Stale connection; drop it and dial again once.
			r.reset(conn)
			continue
		}

		if err := r.ensureTopology(ch); err != nil {
			_ = ch.Close()
			return nil, err
		}
		return ch, nil
	}
	return nil, fmt.Errorf("failed to open rabbitmq channel")
}

func (r *RabbitMQ) reset(stale *amqp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == stale {
		r.conn = nil
		r.declared = false
	}
	if stale != nil && !stale.IsClosed() {
		_ = stale.Close()
	}
}

// connection returns the live connection, dialing with exponential backoff until ctx ends.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.conn = conn
			r.declared = false
			return conn, nil
		}

		r.logger.Warn("rabbitmq dial failed", zap.Error(err), zap.Duration("retryIn", wait))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq connect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, maxBackoff)
	}
}

func (r *RabbitMQ) ensureTopology(ch *amqp.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared {
		return nil
	}
	if err := declareTopology(ch); err != nil {
		return err
	}
	r.declared = true
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(AlertDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", AlertDLQ, err)
	}
	if err := ch.QueueBind(AlertDLQ, AlertQueue, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", AlertDLQ, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": AlertQueue,
		"x-max-priority":            queueMaxPriority,
	}
	if _, err := ch.QueueDeclare(AlertQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", AlertQueue, err)
	}

	return nil
}
