package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"go.uber.org/zap"
)

type CareCircleNotifier interface {
	NotifyCareCircle(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error)
}

// AlertEventHandler broadcasts alerts delivered as EventBridge events.
type AlertEventHandler struct {
	notifier CareCircleNotifier
	logger   *zap.Logger
}

type alertEventDetail struct {
	Alert    domain.HealthAlert `json:"alert"`
	Channels []string           `json:"channels"`
}

type AlertEventResult struct {
	AlertID string `json:"alertId"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

func NewAlertEventHandler(notifier CareCircleNotifier, logger *zap.Logger) (*AlertEventHandler, error) {
	if notifier == nil {
		return nil, fmt.Errorf("care circle notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertEventHandler{notifier: notifier, logger: logger}, nil
}

// Handle returns an error only for failures worth a Lambda retry; malformed events are rejected.
func (h *AlertEventHandler) Handle(ctx context.Context, event events.CloudWatchEvent) (*AlertEventResult, error) {
	var detail alertEventDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return nil, fmt.Errorf("%w: invalid event detail: %v", domain.ErrValidation, err)
	}

	channels, err := domain.ParseChannels(detail.Channels)
	if err != nil {
		return nil, err
	}

	alert := detail.Alert
	alert.Severity = domain.Severity(strings.ToLower(strings.TrimSpace(alert.Severity.String())))
	if alert.Timestamp.IsZero() {
		alert.Timestamp = event.Time.UTC()
	}

	ctx = observability.WithCorrelationID(ctx, event.ID)
	results, err := h.notifier.NotifyCareCircle(ctx, alert, channels)
	if err != nil {
		observability.WithContextLogger(h.logger, ctx).Error("alert event broadcast failed",
			zap.String("alertId", alert.ID),
			zap.String("source", event.Source),
			zap.Error(err),
		)
		return nil, err
	}

	out := &AlertEventResult{AlertID: alert.ID}
	for _, r := range results {
		if r.Status == domain.StatusFailed {
			out.Failed++
		} else {
			out.Sent++
		}
	}
	return out, nil
}
