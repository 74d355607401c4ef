package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = time.Minute
	defaultRetryScanLimit    = 100
)

// RetryScanner re-sends persisted failures that still have retry budget, such as
// results left behind when a dispatcher process stopped before its retry round.
type RetryScanner struct {
	results  repository.NotificationResultRepository
	sender   ChannelSender
	retry    RetryPolicy
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	limit    int
	// minAge keeps the scanner away from results a live dispatcher is still retrying.
	minAge time.Duration
	now    func() time.Time
}

func NewRetryScanner(
	results repository.NotificationResultRepository,
	sender ChannelSender,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*RetryScanner, error) {
	if results == nil {
		return nil, fmt.Errorf("notification result repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("channel sender is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		results:  results,
		sender:   sender,
		retry:    DefaultRetryPolicy(),
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		limit:    limit,
		minAge:   2 * domain.DispatchTimeout,
		now:      time.Now,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if err := s.scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scan(ctx context.Context) error {
	candidates, err := s.results.ListRetryable(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch retryable results: %w", err)
	}

	cutoff := s.now().Add(-s.minAge)
	for _, result := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		if !s.retry.ShouldRetry(result) || result.SentAt.After(cutoff) {
			continue
		}

		delivery := deliveryFromResult(result)
		delivery.RetryCount++
		retried := s.sender.Send(ctx, delivery)
		s.metrics.IncRetry(retried.Channel.String(), retried.Status.String())

		if err := s.results.Save(ctx, &retried); err != nil {
			s.logger.Error("failed to persist retried result",
				zap.String("notificationId", retried.NotificationID),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("retried notification",
			zap.String("notificationId", retried.NotificationID),
			zap.String("status", retried.Status.String()),
			zap.Int("retryCount", retried.RetryCount),
		)
	}
	return nil
}
