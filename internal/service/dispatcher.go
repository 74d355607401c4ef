package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher delivers an alert to users over their channels, persists every result
// and gives failed sends one retry round.
type Dispatcher struct {
	users   repository.UserRepository
	results repository.NotificationResultRepository
	sender  ChannelSender
	retry   RetryPolicy
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	newID   func(now time.Time) string
	sleep   func(ctx context.Context, d time.Duration) error
}

type DispatcherOption func(*Dispatcher)

func WithRetryPolicy(policy RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.retry = policy }
}

// WithDispatchTimeout overrides domain.DispatchTimeout.
func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithDispatcherMetrics(metrics *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = metrics }
}

func NewDispatcher(
	users repository.UserRepository,
	results repository.NotificationResultRepository,
	sender ChannelSender,
	logger *zap.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if results == nil {
		return nil, fmt.Errorf("notification result repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("channel sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		users:   users,
		results: results,
		sender:  sender,
		retry:   DefaultRetryPolicy(),
		timeout: domain.DispatchTimeout,
		logger:  logger,
		now:     time.Now,
		newID:   newNotificationID,
		sleep:   sleepWithContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SendNotification returns one result per requested channel the recipient can be
// reached on; no requested channels means no sends. The only error is
// domain.ErrDispatchTimeout (or the caller's context error). The retry round gets its
// own timeout, so a call can take up to twice the dispatch timeout plus the backoff.
func (d *Dispatcher) SendNotification(ctx context.Context, req domain.NotificationRequest) ([]domain.NotificationResult, error) {
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("recipientUserId", req.Recipient),
		zap.String("alertId", req.Alert.ID),
	)

	user, err := d.users.GetUser(ctx, req.Recipient)
	if err != nil || user == nil {
		logger.Warn("recipient lookup failed, skipping notification", zap.Error(err))
		return []domain.NotificationResult{}, nil
	}

	deliveries := d.plan(user, req)
	if len(deliveries) == 0 {
		logger.Info("recipient has no contact for requested channels", zap.Int("channels", len(req.Channels)))
		return []domain.NotificationResult{}, nil
	}

	results, err := d.sendAll(ctx, deliveries)
	if err != nil {
		if errors.Is(err, domain.ErrDispatchTimeout) {
			d.metrics.IncDispatchTimeout()
			logger.Error("notification dispatch timed out", zap.Duration("timeout", d.timeout))
		}
		return nil, err
	}

	for i := range results {
		d.persist(ctx, &results[i])
	}

	return d.retryFailed(ctx, logger, results), nil
}

// plan builds one delivery per distinct channel the user has a contact for.
func (d *Dispatcher) plan(user *domain.User, req domain.NotificationRequest) []Delivery {
	channels := req.Channels
	subject, body := renderAlert(req.Alert)
	now := d.now()

	deliveries := make([]Delivery, 0, len(channels))
	seen := make(map[domain.Channel]struct{}, len(channels))
	for _, channel := range channels {
		if _, dup := seen[channel]; dup {
			continue
		}
		seen[channel] = struct{}{}

		contact, ok := user.ContactFor(channel)
		if !ok {
			continue
		}
		deliveries = append(deliveries, Delivery{
			NotificationID:  d.newID(now),
			AlertID:         req.Alert.ID,
			RecipientUserID: user.ID,
			Recipient:       contact,
			Channel:         channel,
			Priority:        req.Priority,
			Subject:         subject,
			Body:            body,
		})
	}
	return deliveries
}

type indexedResult struct {
	index  int
	result domain.NotificationResult
}

// sendAll races every delivery against the dispatch timeout. Late senders keep running
// and write into the buffered channel, so they never block.
func (d *Dispatcher) sendAll(ctx context.Context, deliveries []Delivery) ([]domain.NotificationResult, error) {
	out := make(chan indexedResult, len(deliveries))
	for i, delivery := range deliveries {
		go func() {
			out <- indexedResult{index: i, result: d.sender.Send(ctx, delivery)}
		}()
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	results := make([]domain.NotificationResult, len(deliveries))
	for received := 0; received < len(deliveries); received++ {
		select {
		case r := <-out:
			results[r.index] = r.result
		case <-timer.C:
			return nil, domain.ErrDispatchTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// retryFailed re-sends retryable failures once, reusing their notification ids, and
// replaces them in results with the retry outcome.
func (d *Dispatcher) retryFailed(ctx context.Context, logger *zap.Logger, results []domain.NotificationResult) []domain.NotificationResult {
	indexes := make([]int, 0)
	retries := make([]Delivery, 0)
	for i := range results {
		if !d.retry.ShouldRetry(results[i]) {
			continue
		}
		delivery := deliveryFromResult(results[i])
		delivery.RetryCount++
		indexes = append(indexes, i)
		retries = append(retries, delivery)
	}
	if len(retries) == 0 {
		return results
	}

	if err := d.sleep(ctx, d.retry.Delay(retries[0].RetryCount)); err != nil {
		logger.Warn("retry round skipped", zap.Error(err))
		return results
	}

	retried, err := d.sendAll(ctx, retries)
	if err != nil {
		logger.Warn("retry round did not complete, keeping failed results", zap.Error(err))
		return results
	}

	for j := range retried {
		d.persist(ctx, &retried[j])
		d.metrics.IncRetry(retried[j].Channel.String(), retried[j].Status.String())
		results[indexes[j]] = retried[j]
	}
	return results
}

func (d *Dispatcher) persist(ctx context.Context, result *domain.NotificationResult) {
	if err := d.results.Save(ctx, result); err != nil {
		observability.WithContextLogger(d.logger, ctx).Error("failed to persist notification result",
			zap.String("notificationId", result.NotificationID),
			zap.String("alertId", result.AlertID),
			zap.String("channel", result.Channel.String()),
			zap.Error(err),
		)
	}
}

// SendNotificationToCareCircle dispatches to every user concurrently and flattens the
// results in userIDs order. Any recipient error fails the whole call.
func (d *Dispatcher) SendNotificationToCareCircle(
	ctx context.Context,
	userIDs []string,
	alert domain.HealthAlert,
	channels []domain.Channel,
) ([]domain.NotificationResult, error) {
	priority := domain.CareCirclePriority(alert.Severity)
	perRecipient := make([][]domain.NotificationResult, len(userIDs))

	// A plain group: one recipient timing out must not cancel the others' sends.
	var g errgroup.Group
	for i, userID := range userIDs {
		g.Go(func() error {
			results, err := d.SendNotification(ctx, domain.NotificationRequest{
				Recipient: userID,
				Alert:     alert,
				Channels:  channels,
				Priority:  priority,
			})
			if err != nil {
				return fmt.Errorf("notify %s: %w", userID, err)
			}
			perRecipient[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flattened := make([]domain.NotificationResult, 0, len(userIDs))
	for _, results := range perRecipient {
		flattened = append(flattened, results...)
	}
	return flattened, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
