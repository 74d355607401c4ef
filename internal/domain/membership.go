package domain

import "time"

// CareCircleMember links a secondary user (viewer) to a primary user (data owner).
type CareCircleMember struct {
	PrimaryUserID   string
	SecondaryUserID string
	Relationship    string
	Permissions     PermissionSet
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
