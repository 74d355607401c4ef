package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kursadbilgin/carecircle-dispatch/internal/access"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PermissionChecker is the access decision the notifier gates recipients with.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, req access.AccessRequest) bool
}

// CareCircleDispatcher fans an alert out to several users.
type CareCircleDispatcher interface {
	SendNotificationToCareCircle(ctx context.Context, userIDs []string, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error)
}

// CareCircleNotifier broadcasts a patient's alert to the members allowed to receive alerts.
type CareCircleNotifier struct {
	members     repository.CareCircleRepository
	users       repository.UserRepository
	permissions PermissionChecker
	dispatcher  CareCircleDispatcher
	logger      *zap.Logger
}

func NewCareCircleNotifier(
	members repository.CareCircleRepository,
	users repository.UserRepository,
	permissions PermissionChecker,
	dispatcher CareCircleDispatcher,
	logger *zap.Logger,
) (*CareCircleNotifier, error) {
	if members == nil {
		return nil, fmt.Errorf("care circle repository is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permission checker is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CareCircleNotifier{
		members:     members,
		users:       users,
		permissions: permissions,
		dispatcher:  dispatcher,
		logger:      logger,
	}, nil
}

// NotifyCareCircle sends alert to every member of alert.UserID's circle holding the
// alerts permission. With no channels, each member's preferred channels are used.
func (n *CareCircleNotifier) NotifyCareCircle(ctx context.Context, alert domain.HealthAlert, channels []domain.Channel) ([]domain.NotificationResult, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	ctx = observability.WithAlertID(ctx, alert.ID)
	logger := observability.WithContextLogger(n.logger, ctx)

	members, err := n.members.ListMembers(ctx, alert.UserID)
	if err != nil {
		return nil, fmt.Errorf("list care circle of %s: %w", alert.UserID, err)
	}

	recipients := make([]string, 0, len(members))
	for _, member := range members {
		allowed := n.permissions.CheckPermission(ctx, access.AccessRequest{
			RequestingUserID:   member.SecondaryUserID,
			RequestingUserType: domain.UserTypeSecondary,
			TargetUserID:       alert.UserID,
			DataType:           domain.DataCategoryAlerts,
			Action:             domain.ActionRead,
		})
		if allowed {
			recipients = append(recipients, member.SecondaryUserID)
		}
	}

	logger.Info("notifying care circle",
		zap.Int("members", len(members)),
		zap.Int("recipients", len(recipients)),
		zap.String("severity", alert.Severity.String()),
	)
	if len(recipients) == 0 {
		return []domain.NotificationResult{}, nil
	}
	if len(channels) > 0 {
		return n.dispatcher.SendNotificationToCareCircle(ctx, recipients, alert, channels)
	}
	return n.notifyPreferred(ctx, recipients, alert)
}

type channelGroup struct {
	channels   []domain.Channel
	recipients []string
}

// notifyPreferred dispatches to recipients grouped by their preferred channels, all
// groups concurrently, and returns the results in recipients order.
func (n *CareCircleNotifier) notifyPreferred(ctx context.Context, recipients []string, alert domain.HealthAlert) ([]domain.NotificationResult, error) {
	groups := n.groupByPreferredChannels(ctx, recipients)

	perGroup := make([][]domain.NotificationResult, len(groups))
	var g errgroup.Group
	for i, group := range groups {
		g.Go(func() error {
			results, err := n.dispatcher.SendNotificationToCareCircle(ctx, group.recipients, alert, group.channels)
			if err != nil {
				return err
			}
			perGroup[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byRecipient := make(map[string][]domain.NotificationResult, len(recipients))
	for _, results := range perGroup {
		for _, result := range results {
			byRecipient[result.RecipientUserID] = append(byRecipient[result.RecipientUserID], result)
		}
	}
	ordered := make([]domain.NotificationResult, 0, len(recipients))
	for _, recipient := range recipients {
		ordered = append(ordered, byRecipient[recipient]...)
	}
	return ordered, nil
}

// groupByPreferredChannels falls back to every channel for users without preferences
// or whose profile cannot be loaded.
func (n *CareCircleNotifier) groupByPreferredChannels(ctx context.Context, recipients []string) []channelGroup {
	var groups []channelGroup
	index := make(map[string]int)
	for _, recipient := range recipients {
		channels := domain.AllChannels
		user, err := n.users.GetUser(ctx, recipient)
		if err != nil || user == nil {
			observability.WithContextLogger(n.logger, ctx).Warn("preferred channels unavailable, using all channels",
				zap.String("recipientUserId", recipient),
				zap.Error(err),
			)
		} else if len(user.Preferences.NotificationChannels) > 0 {
			channels = user.Preferences.NotificationChannels
		}

		key := channelKey(channels)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, channelGroup{channels: slices.Clone(channels)})
		}
		groups[i].recipients = append(groups[i].recipients, recipient)
	}
	return groups
}

func channelKey(channels []domain.Channel) string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}
