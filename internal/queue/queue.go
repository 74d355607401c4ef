package queue

import (
	"context"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

const (
	// AlertQueue carries health alerts waiting to be fanned out to care circles.
	AlertQueue = "health-alerts"
	// AlertDLQ receives alerts that failed twice or could not be decoded.
	AlertDLQ = "dlq." + AlertQueue

	dlxExchangeName = "carecircle.dlx"

	// queueMaxPriority is the RabbitMQ x-max-priority value of the alert queue.
	queueMaxPriority int32 = 4
)

// Publisher publishes alert messages.
type Publisher interface {
	Publish(ctx context.Context, msg AlertMessage) error
	Close() error
}

// MessageHandler handles a consumed alert.
type MessageHandler func(ctx context.Context, msg AlertMessage) error

// Consumer consumes alert messages.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

// PriorityValue maps alert severity to RabbitMQ message priority.
func PriorityValue(severity domain.Severity) uint8 {
	switch severity {
	case domain.SeverityCritical:
		return 4
	case domain.SeverityHigh:
		return 3
	case domain.SeverityMedium:
		return 2
	case domain.SeverityLow:
		return 1
	default:
		return 0
	}
}
