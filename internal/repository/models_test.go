package repository

import (
	"testing"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

func TestAuditModelConversion(t *testing.T) {
	t.Parallel()

	perms := domain.LimitedPermissions
	entry := &domain.AccessAuditEntry{
		ID:                 "id-1",
		RequestingUserID:   "s1",
		RequestingUserType: domain.UserTypeSecondary,
		TargetUserID:       "p1",
		DataType:           domain.DataCategoryVitals,
		Action:             domain.ActionRead,
		Allowed:            false,
		Reason:             domain.ReasonCareCirclePermission,
		PermissionChecked:  domain.PermissionViewVitals,
		Permissions:        &perms,
		CreatedAt:          time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	model := auditModelFromDomain(entry)
	if model.PermissionChecked == nil || *model.PermissionChecked != "canViewVitals" {
		t.Fatalf("unexpected permission checked: %v", model.PermissionChecked)
	}
	if model.Error != nil {
		t.Fatalf("expected nil error column, got %q", *model.Error)
	}

	perms.CanViewVitals = true
	if model.Permissions.CanViewVitals {
		t.Fatal("model must hold a snapshot of the permission set")
	}

	back := auditModelToDomain(model)
	if back.PermissionChecked != entry.PermissionChecked || back.Reason != entry.Reason || back.Error != "" {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}

func TestAuditModelConversion_ErrorEntry(t *testing.T) {
	t.Parallel()

	model := auditModelFromDomain(&domain.AccessAuditEntry{
		RequestingUserID: "s1",
		TargetUserID:     "p1",
		Reason:           domain.ReasonError,
		Error:            "lookup failed",
	})
	if model.PermissionChecked != nil {
		t.Fatal("expected no permission checked")
	}
	if model.Error == nil || *model.Error != "lookup failed" {
		t.Fatalf("unexpected error column: %v", model.Error)
	}
	if auditModelFromDomain(nil) != nil || auditModelToDomain(nil) != nil {
		t.Fatal("nil conversions must return nil")
	}
}
