package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg AlertMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid alert message: %w", err)
	}
	if msg.SubmittedAt.IsZero() {
		msg.SubmittedAt = p.now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     msg.SubmittedAt,
		MessageId:     msg.Alert.ID,
		CorrelationId: msg.CorrelationID,
		Priority:      PriorityValue(msg.Alert.Severity),
		Type:          msg.Alert.Type,
		Body:          payload,
	}

	if err := ch.PublishWithContext(ctx, "", AlertQueue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish alert %q: %w", msg.Alert.ID, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
