package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/access"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/provider"
	"github.com/kursadbilgin/carecircle-dispatch/internal/queue"
)

type fakeUserRepo struct {
	getUserFn func(ctx context.Context, userID string) (*domain.User, error)
}

func (f *fakeUserRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if f.getUserFn != nil {
		return f.getUserFn(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func usersByID(users ...domain.User) *fakeUserRepo {
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &fakeUserRepo{
		getUserFn: func(_ context.Context, userID string) (*domain.User, error) {
			u, ok := byID[userID]
			if !ok {
				return nil, domain.ErrNotFound
			}
			return &u, nil
		},
	}
}

type fakeResultRepo struct {
	mu              sync.Mutex
	saved           []domain.NotificationResult
	saveFn          func(ctx context.Context, r *domain.NotificationResult) error
	listByAlertFn   func(ctx context.Context, alertID string) ([]domain.NotificationResult, error)
	listRetryableFn func(ctx context.Context, limit int) ([]domain.NotificationResult, error)
}

func (f *fakeResultRepo) Save(ctx context.Context, r *domain.NotificationResult) error {
	f.mu.Lock()
	f.saved = append(f.saved, *r)
	f.mu.Unlock()
	if f.saveFn != nil {
		return f.saveFn(ctx, r)
	}
	return nil
}

func (f *fakeResultRepo) ListByAlert(ctx context.Context, alertID string) ([]domain.NotificationResult, error) {
	if f.listByAlertFn != nil {
		return f.listByAlertFn(ctx, alertID)
	}
	return nil, nil
}

func (f *fakeResultRepo) ListRetryable(ctx context.Context, limit int) ([]domain.NotificationResult, error) {
	if f.listRetryableFn != nil {
		return f.listRetryableFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeResultRepo) all() []domain.NotificationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NotificationResult(nil), f.saved...)
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []Delivery
	sendFn func(ctx context.Context, d Delivery) domain.NotificationResult
}

func (f *fakeSender) Send(ctx context.Context, d Delivery) domain.NotificationResult {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, d)
	}
	return resultFor(d, domain.StatusSent, "")
}

func (f *fakeSender) delivered() []Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Delivery(nil), f.calls...)
}

func resultFor(d Delivery, status domain.Status, reason string) domain.NotificationResult {
	return domain.NotificationResult{
		NotificationID:  d.NotificationID,
		AlertID:         d.AlertID,
		RecipientUserID: d.RecipientUserID,
		Recipient:       d.Recipient,
		Channel:         d.Channel,
		Priority:        d.Priority,
		Status:          status,
		Subject:         d.Subject,
		Message:         d.Body,
		SentAt:          time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		FailureReason:   reason,
		RetryCount:      d.RetryCount,
	}
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []provider.Message
	sendFn func(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 200, MessageID: "provider-1"}, nil
}

type fakeLimiter struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeLimiter) Reserve(context.Context, domain.Channel) (time.Duration, error) { return 0, nil }

func (f *fakeLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeMembersRepo struct {
	listMembersFn func(ctx context.Context, primaryUserID string) ([]domain.CareCircleMember, error)
}

func (f *fakeMembersRepo) GetMember(context.Context, string, string) (*domain.CareCircleMember, error) {
	return nil, nil
}

func (f *fakeMembersRepo) ListMembers(ctx context.Context, primaryUserID string) ([]domain.CareCircleMember, error) {
	if f.listMembersFn != nil {
		return f.listMembersFn(ctx, primaryUserID)
	}
	return nil, nil
}

type fakePermissionChecker struct {
	checkFn func(ctx context.Context, req access.AccessRequest) bool
}

func (f *fakePermissionChecker) CheckPermission(ctx context.Context, req access.AccessRequest) bool {
	if f.checkFn != nil {
		return f.checkFn(ctx, req)
	}
	return false
}

type fakeCareCircleDispatcher struct {
	sendFn func(ctx context.Context, userIDs []string, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error)
}

func (f *fakeCareCircleDispatcher) SendNotificationToCareCircle(ctx context.Context, userIDs []string, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, userIDs, alert, channels)
	}
	return []domain.NotificationResult{}, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, msg queue.AlertMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.AlertMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

func testAlert(severity domain.Severity) domain.HealthAlert {
	return domain.HealthAlert{
		ID:        "alert-1",
		UserID:    "p1",
		Type:      domain.AlertTypeMedicationMissed,
		Severity:  severity,
		Message:   "Morning medication not taken",
		Timestamp: time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC),
	}
}

func noSleep(context.Context, time.Duration) error { return nil }
