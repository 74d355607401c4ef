package access

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks bounds the goroutines of one CheckMultiplePermissions call.
const maxConcurrentChecks = 8

// AccessRequest asks whether a user may act on one category of another user's data.
type AccessRequest struct {
	RequestingUserID   string
	RequestingUserType domain.UserType
	TargetUserID       string
	DataType           domain.DataCategory
	Action             domain.Action
}

type accessDecision struct {
	allowed     bool
	reason      string
	key         domain.PermissionKey
	permissions *domain.PermissionSet
}

// Resolver decides access to a primary user's data and audits every decision.
type Resolver struct {
	members repository.CareCircleRepository
	audit   repository.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewResolver(
	members repository.CareCircleRepository,
	audit repository.AuditRepository,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		members: members,
		audit:   audit,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// CheckPermission never returns an error: any failure is a denial with reason "error".
func (r *Resolver) CheckPermission(ctx context.Context, req AccessRequest) bool {
	if req.Action == "" {
		req.Action = domain.ActionRead
	}

	decision, err := r.decide(ctx, req)
	if err != nil {
		decision = accessDecision{allowed: false, reason: domain.ReasonError}
		observability.WithContextLogger(r.logger, ctx).Error("permission check failed, denying",
			zap.String("requestingUserId", req.RequestingUserID),
			zap.String("targetUserId", req.TargetUserID),
			zap.String("dataType", req.DataType.String()),
			zap.Error(err),
		)
	}

	r.record(ctx, req, decision, err)
	return decision.allowed
}

func (r *Resolver) decide(ctx context.Context, req AccessRequest) (accessDecision, error) {
	switch req.RequestingUserType {
	case domain.UserTypePrimary:
		if req.RequestingUserID == req.TargetUserID {
			return accessDecision{allowed: true, reason: domain.ReasonSelfAccess}, nil
		}
		return accessDecision{allowed: false, reason: domain.ReasonCrossUserAccess}, nil

	case domain.UserTypeSecondary:
		member, err := r.members.GetMember(ctx, req.TargetUserID, req.RequestingUserID)
		if err != nil {
			return accessDecision{}, fmt.Errorf("lookup care circle member: %w", err)
		}
		if member == nil {
			return accessDecision{allowed: false, reason: domain.ReasonCareCircleMembership}, nil
		}

		key, err := domain.RequiredPermission(req.DataType)
		if err != nil {
			return accessDecision{}, err
		}
		permissions := member.Permissions
		return accessDecision{
			allowed:     permissions.Allows(key),
			reason:      domain.ReasonCareCirclePermission,
			key:         key,
			permissions: &permissions,
		}, nil
	}

	return accessDecision{}, fmt.Errorf("%w: unknown user type %q", domain.ErrValidation, req.RequestingUserType)
}

// record writes the single audit entry of a decision. Audit failures never change the outcome.
func (r *Resolver) record(ctx context.Context, req AccessRequest, decision accessDecision, decideErr error) {
	r.metrics.IncPermissionCheck(req.DataType.String(), decision.allowed, decision.reason)

	entry := &domain.AccessAuditEntry{
		RequestingUserID:   req.RequestingUserID,
		RequestingUserType: req.RequestingUserType,
		TargetUserID:       req.TargetUserID,
		DataType:           req.DataType,
		Action:             req.Action,
		Allowed:            decision.allowed,
		Reason:             decision.reason,
		PermissionChecked:  decision.key,
		Permissions:        decision.permissions,
		CreatedAt:          r.now().UTC(),
	}
	if decideErr != nil {
		entry.Error = decideErr.Error()
	}

	logger := observability.WithContextLogger(r.logger, ctx)
	if !decision.allowed && decideErr == nil {
		logger.Info("access denied",
			zap.String("requestingUserId", req.RequestingUserID),
			zap.String("targetUserId", req.TargetUserID),
			zap.String("dataType", req.DataType.String()),
			zap.String("reason", decision.reason),
		)
	}

	if r.audit == nil {
		return
	}
	if err := r.audit.RecordAccess(ctx, entry); err != nil {
		logger.Warn("failed to write access audit entry",
			zap.String("requestingUserId", req.RequestingUserID),
			zap.String("targetUserId", req.TargetUserID),
			zap.Error(err),
		)
	}
}

// CheckMultiplePermissions evaluates each category independently; partial grants are normal.
func (r *Resolver) CheckMultiplePermissions(
	ctx context.Context,
	requestingUserID string,
	requestingUserType domain.UserType,
	targetUserID string,
	categories []domain.DataCategory,
	action domain.Action,
) map[domain.DataCategory]bool {
	allowed := make([]bool, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i, category := range categories {
		g.Go(func() error {
			allowed[i] = r.CheckPermission(gctx, AccessRequest{
				RequestingUserID:   requestingUserID,
				RequestingUserType: requestingUserType,
				TargetUserID:       targetUserID,
				DataType:           category,
				Action:             action,
			})
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[domain.DataCategory]bool, len(categories))
	for i, category := range categories {
		result[category] = allowed[i]
	}
	return result
}

// GetEffectivePermissions returns nil, nil when secondaryUserID is not in primaryUserID's circle.
func (r *Resolver) GetEffectivePermissions(ctx context.Context, secondaryUserID, primaryUserID string) (*domain.PermissionSet, error) {
	member, err := r.members.GetMember(ctx, primaryUserID, secondaryUserID)
	if err != nil {
		return nil, fmt.Errorf("lookup care circle member: %w", err)
	}
	if member == nil {
		return nil, nil
	}
	permissions := member.Permissions
	return &permissions, nil
}

// AccessHistory lists the newest audit entries about targetUserID's data.
func (r *Resolver) AccessHistory(ctx context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error) {
	if r.audit == nil {
		return []domain.AccessAuditEntry{}, nil
	}
	return r.audit.ListByTargetUser(ctx, targetUserID, limit)
}
