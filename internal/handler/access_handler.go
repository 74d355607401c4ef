package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/carecircle-dispatch/internal/access"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type AccessResolver interface {
	CheckPermission(ctx context.Context, req access.AccessRequest) bool
	CheckMultiplePermissions(
		ctx context.Context,
		requestingUserID string,
		requestingUserType domain.UserType,
		targetUserID string,
		categories []domain.DataCategory,
		action domain.Action,
	) map[domain.DataCategory]bool
	GetEffectivePermissions(ctx context.Context, secondaryUserID, primaryUserID string) (*domain.PermissionSet, error)
	AccessHistory(ctx context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error)
}

type AccessHandler struct {
	resolver AccessResolver
}

func NewAccessHandler(resolver AccessResolver) (*AccessHandler, error) {
	if resolver == nil {
		return nil, fmt.Errorf("access resolver is required")
	}
	return &AccessHandler{resolver: resolver}, nil
}

func RegisterAccessRoutes(router fiber.Router, resolver AccessResolver) error {
	h, err := NewAccessHandler(resolver)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/access/check", h.CheckPermission)
	v1.Post("/access/check-batch", h.CheckPermissions)
	v1.Get("/care-circles/:primaryUserId/members/:secondaryUserId/permissions", h.GetEffectivePermissions)
	v1.Get("/users/:userId/access-audit", h.ListAccessAudit)

	return nil
}

type accessCheckRequest struct {
	RequestingUserID   string `json:"requestingUserId" validate:"required"`
	RequestingUserType string `json:"requestingUserType" validate:"required,oneof=primary secondary"`
	TargetUserID       string `json:"targetUserId" validate:"required"`
	DataType           string `json:"dataType" validate:"required"`
	Action             string `json:"action" validate:"omitempty,oneof=read write delete"`
}

type accessBatchRequest struct {
	RequestingUserID   string   `json:"requestingUserId" validate:"required"`
	RequestingUserType string   `json:"requestingUserType" validate:"required,oneof=primary secondary"`
	TargetUserID       string   `json:"targetUserId" validate:"required"`
	DataTypes          []string `json:"dataTypes" validate:"required,min=1,dive,required"`
	Action             string   `json:"action" validate:"omitempty,oneof=read write delete"`
}

type accessCheckResponse struct {
	Allowed  bool   `json:"allowed"`
	DataType string `json:"dataType"`
	Action   string `json:"action"`
}

type accessBatchResponse struct {
	Permissions map[string]bool `json:"permissions"`
}

type effectivePermissionsResponse struct {
	PrimaryUserID   string               `json:"primaryUserId"`
	SecondaryUserID string               `json:"secondaryUserId"`
	Permissions     domain.PermissionSet `json:"permissions"`
}

type accessAuditResponse struct {
	ID                 string                `json:"id"`
	RequestingUserID   string                `json:"requestingUserId"`
	RequestingUserType string                `json:"requestingUserType"`
	TargetUserID       string                `json:"targetUserId"`
	DataType           string                `json:"dataType"`
	Action             string                `json:"action"`
	Allowed            bool                  `json:"allowed"`
	Reason             string                `json:"reason"`
	PermissionChecked  string                `json:"permissionChecked,omitempty"`
	Permissions        *domain.PermissionSet `json:"permissions,omitempty"`
	Error              string                `json:"error,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
}

func (h *AccessHandler) CheckPermission(c *fiber.Ctx) error {
	var req accessCheckRequest
	if err := bindBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	userType, err := domain.ParseUserTypeFromString(req.RequestingUserType)
	if err != nil {
		return toHTTPError(err)
	}
	category, err := domain.ParseDataCategoryFromString(req.DataType)
	if err != nil {
		return toHTTPError(err)
	}
	action, err := domain.ParseActionFromString(req.Action)
	if err != nil {
		return toHTTPError(err)
	}

	allowed := h.resolver.CheckPermission(c.UserContext(), access.AccessRequest{
		RequestingUserID:   strings.TrimSpace(req.RequestingUserID),
		RequestingUserType: userType,
		TargetUserID:       strings.TrimSpace(req.TargetUserID),
		DataType:           category,
		Action:             action,
	})

	return c.Status(fiber.StatusOK).JSON(accessCheckResponse{
		Allowed:  allowed,
		DataType: category.String(),
		Action:   action.String(),
	})
}

func (h *AccessHandler) CheckPermissions(c *fiber.Ctx) error {
	var req accessBatchRequest
	if err := bindBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	userType, err := domain.ParseUserTypeFromString(req.RequestingUserType)
	if err != nil {
		return toHTTPError(err)
	}
	action, err := domain.ParseActionFromString(req.Action)
	if err != nil {
		return toHTTPError(err)
	}
	categories := make([]domain.DataCategory, 0, len(req.DataTypes))
	for _, raw := range req.DataTypes {
		category, err := domain.ParseDataCategoryFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		categories = append(categories, category)
	}

	decisions := h.resolver.CheckMultiplePermissions(
		c.UserContext(),
		strings.TrimSpace(req.RequestingUserID),
		userType,
		strings.TrimSpace(req.TargetUserID),
		categories,
		action,
	)

	permissions := make(map[string]bool, len(decisions))
	for category, allowed := range decisions {
		permissions[category.String()] = allowed
	}
	return c.Status(fiber.StatusOK).JSON(accessBatchResponse{Permissions: permissions})
}

func (h *AccessHandler) GetEffectivePermissions(c *fiber.Ctx) error {
	primaryUserID := strings.TrimSpace(c.Params("primaryUserId"))
	secondaryUserID := strings.TrimSpace(c.Params("secondaryUserId"))

	permissions, err := h.resolver.GetEffectivePermissions(c.UserContext(), secondaryUserID, primaryUserID)
	if err != nil {
		return toHTTPError(err)
	}
	if permissions == nil {
		return toHTTPError(fmt.Errorf("%w: %s is not in the care circle of %s", domain.ErrNotFound, secondaryUserID, primaryUserID))
	}

	return c.Status(fiber.StatusOK).JSON(effectivePermissionsResponse{
		PrimaryUserID:   primaryUserID,
		SecondaryUserID: secondaryUserID,
		Permissions:     *permissions,
	})
}

func (h *AccessHandler) ListAccessAudit(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultAuditLimit)
	if limit < 1 || limit > maxAuditLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxAuditLimit))
	}

	entries, err := h.resolver.AccessHistory(c.UserContext(), strings.TrimSpace(c.Params("userId")), limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]accessAuditResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, accessAuditResponse{
			ID:                 e.ID,
			RequestingUserID:   e.RequestingUserID,
			RequestingUserType: e.RequestingUserType.String(),
			TargetUserID:       e.TargetUserID,
			DataType:           e.DataType.String(),
			Action:             e.Action.String(),
			Allowed:            e.Allowed,
			Reason:             e.Reason,
			PermissionChecked:  e.PermissionChecked.String(),
			Permissions:        e.Permissions,
			Error:              e.Error,
			CreatedAt:          e.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}
