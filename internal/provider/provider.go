package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

// Message is one rendered alert addressed to one contact on one channel.
type Message struct {
	NotificationID string
	AlertID        string
	Channel        domain.Channel
	Priority       domain.Priority
	Recipient      string
	Subject        string
	Body           string
}

func (m Message) Validate() error {
	if !m.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, m.Channel)
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", domain.ErrValidation)
	}
	return nil
}

// Provider is the outbound delivery port for a single channel.
type Provider interface {
	Send(ctx context.Context, msg Message) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for persistence.
type ProviderResponse struct {
	StatusCode int
	MessageID  string
}

// Registry resolves the provider that serves a channel.
type Registry map[domain.Channel]Provider

func (r Registry) For(channel domain.Channel) (Provider, error) {
	p, ok := r[channel]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: no provider configured for channel %q", domain.ErrNotFound, channel)
	}
	return p, nil
}
