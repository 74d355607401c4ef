package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Acknowledger is the part of amqp.Delivery the consumer settles messages with.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx is done, re-subscribing with backoff when the channel drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("alert consumer interrupted, resubscribing",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(AlertQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", AlertQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d.Body, d.Redelivered, d, handler); err != nil {
				return err
			}
		}
	}
}

// handleDelivery decodes, dispatches and settles one delivery. A failing handler gets
// one redelivery; the second failure dead-letters the alert.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, body []byte, redelivered bool, ack Acknowledger, handler MessageHandler) error {
	var msg AlertMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Warn("rejecting alert: invalid JSON", zap.Error(err))
		if rejectErr := ack.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid message: %w", rejectErr)
		}
		return nil
	}

	if err := msg.Validate(); err != nil {
		c.logger.Warn("rejecting alert: validation failed",
			zap.Error(err),
			zap.String("alertId", msg.Alert.ID),
		)
		if rejectErr := ack.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid payload: %w", rejectErr)
		}
		return nil
	}

	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	ctx = observability.WithAlertID(ctx, msg.Alert.ID)

	if err := handler(ctx, msg); err != nil {
		logger := observability.WithContextLogger(c.logger, ctx)
		if redelivered {
			logger.Error("alert failed after redelivery, dead-lettering", zap.Error(err))
			if rejectErr := ack.Reject(false); rejectErr != nil {
				return fmt.Errorf("handler failed and reject failed: %w", rejectErr)
			}
			return nil
		}

		logger.Warn("alert handler failed, requeueing", zap.Error(err))
		if nackErr := ack.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := ack.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ Acknowledger = amqp.Delivery{}
