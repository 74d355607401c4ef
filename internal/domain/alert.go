package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades how urgent a health alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string { return string(s) }

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func ParseSeverityFromString(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: invalid severity %q", ErrValidation, s)
	}
	return sev, nil
}

// Marker is the prefix placed in front of alert text sent to recipients.
func (s Severity) Marker() string {
	return "[" + strings.ToUpper(string(s)) + "]"
}

// AlertType values raised by the monitoring jobs.
const (
	AlertTypeMedicationMissed  = "medication_missed"
	AlertTypeAppointmentMissed = "appointment_missed"
	AlertTypeVitalAnomaly      = "vital_anomaly"
	AlertTypeDeviceOffline     = "device_offline"
	AlertTypeManual            = "manual"
)

// HealthAlert is an immutable notification-worthy event about a primary user.
type HealthAlert struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	Type         string         `json:"type"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	Acknowledged bool           `json:"acknowledged"`
	Escalated    bool           `json:"escalated"`
	RelatedData  map[string]any `json:"relatedData,omitempty"`
}

func (a *HealthAlert) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: alert is required", ErrValidation)
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: alert id is required", ErrValidation)
	}
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("%w: alert userId is required", ErrValidation)
	}
	if strings.TrimSpace(a.Message) == "" {
		return fmt.Errorf("%w: alert message is required", ErrValidation)
	}
	if !a.Severity.IsValid() {
		return fmt.Errorf("%w: invalid severity %q", ErrValidation, a.Severity)
	}
	return nil
}

// CareCirclePriority is the dispatch priority used when broadcasting an alert to a care circle.
func CareCirclePriority(severity Severity) Priority {
	if severity == SeverityCritical {
		return PriorityUrgent
	}
	return PriorityHigh
}
