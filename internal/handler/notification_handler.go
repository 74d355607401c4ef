package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

type NotificationDispatcher interface {
	SendNotification(ctx context.Context, req domain.NotificationRequest) ([]domain.NotificationResult, error)
	SendNotificationToCareCircle(ctx context.Context, userIDs []string, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error)
}

type AlertService interface {
	Submit(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) (*domain.HealthAlert, error)
	ListNotifications(ctx context.Context, alertID string) ([]domain.NotificationResult, error)
}

type NotificationHandler struct {
	dispatcher NotificationDispatcher
	alerts     AlertService
	now        func() time.Time
}

func NewNotificationHandler(dispatcher NotificationDispatcher, alerts AlertService) (*NotificationHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher is required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert service is required")
	}
	return &NotificationHandler{dispatcher: dispatcher, alerts: alerts, now: time.Now}, nil
}

func RegisterNotificationRoutes(router fiber.Router, dispatcher NotificationDispatcher, alerts AlertService) error {
	h, err := NewNotificationHandler(dispatcher, alerts)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SendNotification)
	v1.Post("/notifications/care-circle", h.SendToCareCircle)
	v1.Post("/alerts", h.SubmitAlert)
	v1.Get("/alerts/:alertId/notifications", h.ListAlertNotifications)

	return nil
}

type alertPayload struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId" validate:"required"`
	Type        string         `json:"type"`
	Severity    string         `json:"severity" validate:"required,oneof=low medium high critical"`
	Message     string         `json:"message" validate:"required,max=1000"`
	Timestamp   *time.Time     `json:"timestamp"`
	RelatedData map[string]any `json:"relatedData"`
}

type sendNotificationRequest struct {
	Recipient string       `json:"recipient" validate:"required"`
	Alert     alertPayload `json:"alert"`
	Channels  []string     `json:"channels" validate:"omitempty,dive,oneof=push sms email"`
	Priority  string       `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

type careCircleNotificationRequest struct {
	UserIDs  []string     `json:"userIds" validate:"required,min=1,dive,required"`
	Alert    alertPayload `json:"alert"`
	Channels []string     `json:"channels" validate:"omitempty,dive,oneof=push sms email"`
}

type submitAlertRequest struct {
	alertPayload
	Channels []string `json:"channels" validate:"omitempty,dive,oneof=push sms email"`
}

type notificationResultResponse struct {
	NotificationID    string     `json:"notificationId"`
	AlertID           string     `json:"alertId"`
	RecipientUserID   string     `json:"recipientUserId"`
	Recipient         string     `json:"recipient"`
	Channel           string     `json:"channel"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	SentAt            time.Time  `json:"sentAt"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	FailureReason     string     `json:"failureReason,omitempty"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	RetryCount        int        `json:"retryCount"`
}

type notificationResultsResponse struct {
	Data []notificationResultResponse `json:"data"`
}

type alertResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := bindBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	channels, err := domain.ParseChannels(req.Channels)
	if err != nil {
		return toHTTPError(err)
	}
	priority := domain.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		if priority, err = domain.ParsePriorityFromString(req.Priority); err != nil {
			return toHTTPError(err)
		}
	}

	results, err := h.dispatcher.SendNotification(c.UserContext(), domain.NotificationRequest{
		Recipient: strings.TrimSpace(req.Recipient),
		Alert:     h.toDomainAlert(req.Alert),
		Channels:  channels,
		Priority:  priority,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(notificationResultsResponse{Data: toResultResponses(results)})
}

func (h *NotificationHandler) SendToCareCircle(c *fiber.Ctx) error {
	var req careCircleNotificationRequest
	if err := bindBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	channels, err := domain.ParseChannels(req.Channels)
	if err != nil {
		return toHTTPError(err)
	}
	userIDs := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		userIDs = append(userIDs, strings.TrimSpace(id))
	}

	results, err := h.dispatcher.SendNotificationToCareCircle(c.UserContext(), userIDs, h.toDomainAlert(req.Alert), channels)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(notificationResultsResponse{Data: toResultResponses(results)})
}

func (h *NotificationHandler) SubmitAlert(c *fiber.Ctx) error {
	var req submitAlertRequest
	if err := bindBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	channels, err := domain.ParseChannels(req.Channels)
	if err != nil {
		return toHTTPError(err)
	}

	alert, err := h.alerts.Submit(c.UserContext(), h.toDomainAlert(req.alertPayload), channels)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(alertResponse{
		ID:        alert.ID,
		UserID:    alert.UserID,
		Type:      alert.Type,
		Severity:  alert.Severity.String(),
		Message:   alert.Message,
		Timestamp: alert.Timestamp,
		Status:    "queued",
	})
}

func (h *NotificationHandler) ListAlertNotifications(c *fiber.Ctx) error {
	results, err := h.alerts.ListNotifications(c.UserContext(), strings.TrimSpace(c.Params("alertId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(notificationResultsResponse{Data: toResultResponses(results)})
}

// toDomainAlert fills a missing id and timestamp so synchronous sends can be correlated.
func (h *NotificationHandler) toDomainAlert(p alertPayload) domain.HealthAlert {
	alert := domain.HealthAlert{
		ID:          strings.TrimSpace(p.ID),
		UserID:      strings.TrimSpace(p.UserID),
		Type:        strings.TrimSpace(p.Type),
		Severity:    domain.Severity(strings.ToLower(strings.TrimSpace(p.Severity))),
		Message:     strings.TrimSpace(p.Message),
		RelatedData: p.RelatedData,
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if p.Timestamp != nil {
		alert.Timestamp = p.Timestamp.UTC()
	} else {
		alert.Timestamp = h.now().UTC()
	}
	return alert
}

func toResultResponses(results []domain.NotificationResult) []notificationResultResponse {
	responses := make([]notificationResultResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, notificationResultResponse{
			NotificationID:    r.NotificationID,
			AlertID:           r.AlertID,
			RecipientUserID:   r.RecipientUserID,
			Recipient:         r.Recipient,
			Channel:           r.Channel.String(),
			Priority:          r.Priority.String(),
			Status:            r.Status.String(),
			SentAt:            r.SentAt,
			DeliveredAt:       r.DeliveredAt,
			ReadAt:            r.ReadAt,
			FailureReason:     r.FailureReason,
			ProviderMessageID: r.ProviderMessageID,
			RetryCount:        r.RetryCount,
		})
	}
	return responses
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDispatchTimeout):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	default:
		return err
	}
}
