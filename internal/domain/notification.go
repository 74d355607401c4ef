package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxRetryCount bounds NotificationResult.RetryCount.
	MaxRetryCount = 3

	// DispatchTimeout covers every channel send of a single SendNotification call.
	DispatchTimeout = 30 * time.Second
)

// Status represents the delivery state of a notification result.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// AllChannels lists every supported channel.
var AllChannels = []Channel{ChannelPush, ChannelSMS, ChannelEmail}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelPush, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ParseChannels parses and de-duplicates a channel list, keeping first-seen order.
func ParseChannels(values []string) ([]Channel, error) {
	channels := make([]Channel, 0, len(values))
	seen := make(map[Channel]struct{}, len(values))
	for _, v := range values {
		ch, err := ParseChannelFromString(v)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	return channels, nil
}

// Priority represents the message priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// NotificationRequest asks for one alert to be delivered to one user.
type NotificationRequest struct {
	Recipient string
	Alert     HealthAlert
	Channels  []Channel
	Priority  Priority
}

// NotificationResult records one (attempt, channel, recipient) outcome.
type NotificationResult struct {
	NotificationID    string
	AlertID           string
	RecipientUserID   string
	Recipient         string
	Channel           Channel
	Priority          Priority
	Status            Status
	Subject           string
	Message           string
	SentAt            time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	FailureReason     string
	ProviderMessageID string
	RetryCount        int
}

// IsTerminal reports whether no further retry may be attempted.
func (r NotificationResult) IsTerminal() bool {
	return r.Status != StatusFailed || r.RetryCount >= MaxRetryCount
}
