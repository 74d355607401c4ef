package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

// renderAlert builds the email subject and the channel-neutral body of an alert.
func renderAlert(alert domain.HealthAlert) (subject, body string) {
	alertType := strings.TrimSpace(alert.Type)
	if alertType == "" {
		alertType = domain.AlertTypeManual
	}
	subject = fmt.Sprintf("Health alert (%s): %s", strings.ToUpper(alert.Severity.String()), alertType)
	body = alert.Severity.Marker() + " " + strings.TrimSpace(alert.Message)
	return subject, body
}

// newNotificationID returns "<unix-millis>-<9 char random suffix>".
func newNotificationID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}
