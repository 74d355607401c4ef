package queue

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

// AlertMessage is the broker payload for one alert to broadcast.
type AlertMessage struct {
	Alert         domain.HealthAlert `json:"alert"`
	Channels      []domain.Channel   `json:"channels,omitempty"`
	CorrelationID string             `json:"correlationId,omitempty"`
	SubmittedAt   time.Time          `json:"submittedAt"`
}

func (m AlertMessage) Validate() error {
	if err := m.Alert.Validate(); err != nil {
		return err
	}
	for _, ch := range m.Channels {
		if !ch.IsValid() {
			return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, ch)
		}
	}
	return nil
}
