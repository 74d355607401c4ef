package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

type pushRequest struct {
	NotificationID string `json:"notificationId"`
	AlertID        string `json:"alertId,omitempty"`
	To             string `json:"to"`
	Channel        string `json:"channel"`
	Priority       string `json:"priority,omitempty"`
	Title          string `json:"title,omitempty"`
	Body           string `json:"body"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
}

// WebhookProvider posts push notifications to an HTTP push gateway.
type WebhookProvider struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookProvider(endpoint string) (*WebhookProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)

	return NewWebhookProviderWithClient(endpoint, client)
}

func NewWebhookProviderWithClient(endpoint string, client *resty.Client) (*WebhookProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid push gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WebhookProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, &ProviderError{Provider: "push", Message: "invalid message", Cause: err}
	}

	var body pushResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", msg.NotificationID).
		SetBody(pushRequest{
			NotificationID: msg.NotificationID,
			AlertID:        msg.AlertID,
			To:             msg.Recipient,
			Channel:        msg.Channel.String(),
			Priority:       msg.Priority.String(),
			Title:          msg.Subject,
			Body:           msg.Body,
		}).
		SetResult(&body).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Provider:  "push",
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := strings.TrimSpace(body.MessageID)
		if messageID == "" {
			messageID = strings.TrimSpace(response.Header().Get("X-Request-ID"))
		}
		return &ProviderResponse{
			StatusCode: statusCode,
			MessageID:  messageID,
		}, nil
	}

	message := fmt.Sprintf("gateway returned status %d", statusCode)
	if text := strings.TrimSpace(response.String()); text != "" {
		message += ": " + text
	}
	return nil, &ProviderError{
		Provider:   "push",
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}
