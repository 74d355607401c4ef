package domain

import "time"

// Reason tags attached to every access decision.
const (
	ReasonSelfAccess           = "self-access"
	ReasonCareCircleMembership = "care-circle-membership"
	ReasonCareCirclePermission = "care-circle-permission"
	ReasonCrossUserAccess      = "cross-user-access"
	ReasonError                = "error"
)

// AccessAuditEntry is the audit record written for one permission decision.
type AccessAuditEntry struct {
	ID                 string
	RequestingUserID   string
	RequestingUserType UserType
	TargetUserID       string
	DataType           DataCategory
	Action             Action
	Allowed            bool
	Reason             string
	PermissionChecked  PermissionKey
	Permissions        *PermissionSet
	Error              string
	CreatedAt          time.Time
}
