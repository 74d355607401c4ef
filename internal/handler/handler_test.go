package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/carecircle-dispatch/internal/access"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/transport"
	"go.uber.org/zap"
)

type stubResolver struct {
	checkFn     func(ctx context.Context, req access.AccessRequest) bool
	checkManyFn func(ctx context.Context, requestingUserID string, userType domain.UserType, targetUserID string, categories []domain.DataCategory, action domain.Action) map[domain.DataCategory]bool
	effectiveFn func(ctx context.Context, secondaryUserID, primaryUserID string) (*domain.PermissionSet, error)
	historyFn   func(ctx context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error)
}

func (s *stubResolver) CheckPermission(ctx context.Context, req access.AccessRequest) bool {
	if s.checkFn != nil {
		return s.checkFn(ctx, req)
	}
	return false
}

func (s *stubResolver) CheckMultiplePermissions(
	ctx context.Context,
	requestingUserID string,
	userType domain.UserType,
	targetUserID string,
	categories []domain.DataCategory,
	action domain.Action,
) map[domain.DataCategory]bool {
	if s.checkManyFn != nil {
		return s.checkManyFn(ctx, requestingUserID, userType, targetUserID, categories, action)
	}
	return map[domain.DataCategory]bool{}
}

func (s *stubResolver) GetEffectivePermissions(ctx context.Context, secondaryUserID, primaryUserID string) (*domain.PermissionSet, error) {
	if s.effectiveFn != nil {
		return s.effectiveFn(ctx, secondaryUserID, primaryUserID)
	}
	return nil, nil
}

func (s *stubResolver) AccessHistory(ctx context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, targetUserID, limit)
	}
	return nil, nil
}

type stubDispatcher struct {
	sendFn       func(ctx context.Context, req domain.NotificationRequest) ([]domain.NotificationResult, error)
	careCircleFn func(ctx context.Context, userIDs []string, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error)
}

func (s *stubDispatcher) SendNotification(ctx context.Context, req domain.NotificationRequest) ([]domain.NotificationResult, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, req)
	}
	return []domain.NotificationResult{}, nil
}

func (s *stubDispatcher) SendNotificationToCareCircle(ctx context.Context, userIDs []string, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error) {
	if s.careCircleFn != nil {
		return s.careCircleFn(ctx, userIDs, alert, channels)
	}
	return []domain.NotificationResult{}, nil
}

type stubAlertService struct {
	submitFn func(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) (*domain.HealthAlert, error)
	listFn   func(ctx context.Context, alertID string) ([]domain.NotificationResult, error)
}

func (s *stubAlertService) Submit(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) (*domain.HealthAlert, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, alert, channels)
	}
	return &alert, nil
}

func (s *stubAlertService) ListNotifications(ctx context.Context, alertID string) ([]domain.NotificationResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, alertID)
	}
	return nil, domain.ErrNotFound
}

func newTestApp(t *testing.T, resolver AccessResolver, dispatcher NotificationDispatcher, alerts AlertService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(transport.CorrelationID())

	if resolver != nil {
		if err := RegisterAccessRoutes(app, resolver); err != nil {
			t.Fatalf("RegisterAccessRoutes() error = %v", err)
		}
	}
	if dispatcher != nil {
		if err := RegisterNotificationRoutes(app, dispatcher, alerts); err != nil {
			t.Fatalf("RegisterNotificationRoutes() error = %v", err)
		}
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

func openStubDB(t *testing.T, pingErr error) *sql.DB {
	t.Helper()
	db := sql.OpenDB(stubConnector{pingErr: pingErr})
	t.Cleanup(func() { _ = db.Close() })
	return db
}
