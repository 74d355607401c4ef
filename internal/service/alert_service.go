package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/queue"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"go.uber.org/zap"
)

// AlertService accepts alerts for asynchronous broadcast and answers delivery queries.
type AlertService struct {
	publisher queue.Publisher
	results   repository.NotificationResultRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewAlertService(
	publisher queue.Publisher,
	results repository.NotificationResultRepository,
	logger *zap.Logger,
) (*AlertService, error) {
	if results == nil {
		return nil, fmt.Errorf("notification result repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{
		publisher: publisher,
		results:   results,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Submit fills in id and timestamp when absent and queues the alert for the worker.
func (s *AlertService) Submit(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) (*domain.HealthAlert, error) {
	if s.publisher == nil {
		return nil, fmt.Errorf("alert intake is disabled: no message broker configured")
	}

	if strings.TrimSpace(alert.ID) == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now().UTC()
	}
	if strings.TrimSpace(alert.Type) == "" {
		alert.Type = domain.AlertTypeManual
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	msg := queue.AlertMessage{
		Alert:       alert,
		Channels:    channels,
		SubmittedAt: s.now().UTC(),
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish alert",
			zap.String("alertId", alert.ID),
			zap.String("severity", alert.Severity.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to queue alert: %w", err)
	}

	s.logger.Info("alert queued",
		zap.String("alertId", alert.ID),
		zap.String("userId", alert.UserID),
		zap.String("severity", alert.Severity.String()),
	)
	return &alert, nil
}

func (s *AlertService) ListNotifications(ctx context.Context, alertID string) ([]domain.NotificationResult, error) {
	if strings.TrimSpace(alertID) == "" {
		return nil, fmt.Errorf("%w: alert id is required", domain.ErrValidation)
	}
	return s.results.ListByAlert(ctx, alertID)
}
