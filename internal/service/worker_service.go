package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// AlertNotifier is what a worker does with a queued alert.
type AlertNotifier interface {
	NotifyCareCircle(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error)
}

// AlertWorker consumes the alert queue with a fixed number of consumers.
type AlertWorker struct {
	consumer    queue.Consumer
	notifier    AlertNotifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewAlertWorker(
	consumer queue.Consumer,
	notifier AlertNotifier,
	concurrency int,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*AlertWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AlertWorker{
		consumer:    consumer,
		notifier:    notifier,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
	}, nil
}

// Start blocks until ctx is cancelled or a consumer fails.
func (w *AlertWorker) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.logger.Info("alert worker started", zap.Int("workerId", workerID))

			if err := w.consumer.Consume(groupCtx, w.processAlert); err != nil {
				w.logger.Error("alert worker stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}

			w.logger.Info("alert worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}
	return g.Wait()
}

// processAlert returns an error only when the broadcast should be redelivered.
func (w *AlertWorker) processAlert(ctx context.Context, msg queue.AlertMessage) error {
	logger := observability.WithContextLogger(w.logger, ctx)

	results, err := w.notifier.NotifyCareCircle(ctx, msg.Alert, msg.Channels)
	if err != nil {
		w.metrics.IncAlertProcessed("failed")
		logger.Error("care circle notification failed", zap.Error(err))
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Status == domain.StatusFailed {
			failed++
		}
	}
	w.metrics.IncAlertProcessed("dispatched")
	logger.Info("care circle notified",
		zap.Int("results", len(results)),
		zap.Int("failed", failed),
	)
	return nil
}
