package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/provider"
	"github.com/kursadbilgin/carecircle-dispatch/internal/ratelimit"
	"go.uber.org/zap"
)

// Delivery is one planned send: a rendered alert, a contact and a channel.
type Delivery struct {
	NotificationID  string
	AlertID         string
	RecipientUserID string
	Recipient       string
	Channel         domain.Channel
	Priority        domain.Priority
	Subject         string
	Body            string
	RetryCount      int
}

func deliveryFromResult(r domain.NotificationResult) Delivery {
	return Delivery{
		NotificationID:  r.NotificationID,
		AlertID:         r.AlertID,
		RecipientUserID: r.RecipientUserID,
		Recipient:       r.Recipient,
		Channel:         r.Channel,
		Priority:        r.Priority,
		Subject:         r.Subject,
		Body:            r.Message,
		RetryCount:      r.RetryCount,
	}
}

// ChannelSender performs exactly one delivery attempt and reports it as a result.
// Failures are data, never errors.
type ChannelSender interface {
	Send(ctx context.Context, d Delivery) domain.NotificationResult
}

type ProviderChannelSender struct {
	providers provider.Registry
	limiter   ratelimit.Limiter
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewProviderChannelSender(
	providers provider.Registry,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *ProviderChannelSender {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderChannelSender{
		providers: providers,
		limiter:   limiter,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *ProviderChannelSender) Send(ctx context.Context, d Delivery) domain.NotificationResult {
	result := domain.NotificationResult{
		NotificationID:  d.NotificationID,
		AlertID:         d.AlertID,
		RecipientUserID: d.RecipientUserID,
		Recipient:       d.Recipient,
		Channel:         d.Channel,
		Priority:        d.Priority,
		Subject:         d.Subject,
		Message:         d.Body,
		RetryCount:      d.RetryCount,
		SentAt:          s.now().UTC(),
	}
	channel := d.Channel.String()

	p, err := s.providers.For(d.Channel)
	if err != nil {
		return s.fail(result, "unsupported_channel", err)
	}

	if err := s.limiter.Wait(ctx, d.Channel); err != nil {
		return s.fail(result, "rate_limited", fmt.Errorf("rate limiter: %w", err))
	}

	done := s.metrics.TrackSend(channel)
	start := s.now()
	resp, err := p.Send(ctx, provider.Message{
		NotificationID: d.NotificationID,
		AlertID:        d.AlertID,
		Channel:        d.Channel,
		Priority:       d.Priority,
		Recipient:      d.Recipient,
		Subject:        d.Subject,
		Body:           d.Body,
	})
	s.metrics.ObserveSendDuration(channel, s.now().Sub(start))
	done()

	if err != nil {
		reason := "permanent_error"
		if provider.IsTransient(err) {
			reason = "transient_error"
		}
		return s.fail(result, reason, err)
	}

	deliveredAt := s.now().UTC()
	result.Status = domain.StatusSent
	result.DeliveredAt = &deliveredAt
	if resp != nil {
		result.ProviderMessageID = strings.TrimSpace(resp.MessageID)
	}
	s.metrics.IncNotificationSent(channel)
	return result
}

func (s *ProviderChannelSender) fail(result domain.NotificationResult, reason string, err error) domain.NotificationResult {
	result.Status = domain.StatusFailed
	result.FailureReason = err.Error()
	s.metrics.IncNotificationFailed(result.Channel.String(), reason)

	fields := []zap.Field{
		zap.String("notificationId", result.NotificationID),
		zap.String("alertId", result.AlertID),
		zap.String("channel", result.Channel.String()),
		zap.Int("retryCount", result.RetryCount),
		zap.Error(err),
	}
	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) && providerErr.StatusCode > 0 {
		fields = append(fields, zap.Int("statusCode", providerErr.StatusCode))
	}
	s.logger.Warn("notification send failed", fields...)
	return result
}
