package repository

import (
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

// AccessAuditModel is the persistence model for the access_audit_log table.
type AccessAuditModel struct {
	ID                 string                `gorm:"type:uuid;primaryKey"`
	RequestingUserID   string                `gorm:"type:varchar(64);not null"`
	RequestingUserType domain.UserType       `gorm:"type:varchar(16);not null"`
	TargetUserID       string                `gorm:"type:varchar(64);not null"`
	DataType           domain.DataCategory   `gorm:"type:varchar(32);not null"`
	Action             domain.Action         `gorm:"type:varchar(16);not null"`
	Allowed            bool                  `gorm:"not null"`
	Reason             string                `gorm:"type:varchar(32);not null"`
	PermissionChecked  *string               `gorm:"type:varchar(32)"`
	Permissions        *domain.PermissionSet `gorm:"type:jsonb;serializer:json"`
	Error              *string               `gorm:"type:text"`
	CreatedAt          time.Time
}

func (AccessAuditModel) TableName() string {
	return "access_audit_log"
}

func auditModelFromDomain(e *domain.AccessAuditEntry) *AccessAuditModel {
	if e == nil {
		return nil
	}

	var permissionChecked *string
	if e.PermissionChecked != "" {
		value := e.PermissionChecked.String()
		permissionChecked = &value
	}

	var errText *string
	if e.Error != "" {
		value := e.Error
		errText = &value
	}

	var permissions *domain.PermissionSet
	if e.Permissions != nil {
		snapshot := *e.Permissions
		permissions = &snapshot
	}

	return &AccessAuditModel{
		ID:                 e.ID,
		RequestingUserID:   e.RequestingUserID,
		RequestingUserType: e.RequestingUserType,
		TargetUserID:       e.TargetUserID,
		DataType:           e.DataType,
		Action:             e.Action,
		Allowed:            e.Allowed,
		Reason:             e.Reason,
		PermissionChecked:  permissionChecked,
		Permissions:        permissions,
		Error:              errText,
		CreatedAt:          e.CreatedAt,
	}
}

func auditModelToDomain(m *AccessAuditModel) *domain.AccessAuditEntry {
	if m == nil {
		return nil
	}

	entry := &domain.AccessAuditEntry{
		ID:                 m.ID,
		RequestingUserID:   m.RequestingUserID,
		RequestingUserType: m.RequestingUserType,
		TargetUserID:       m.TargetUserID,
		DataType:           m.DataType,
		Action:             m.Action,
		Allowed:            m.Allowed,
		Reason:             m.Reason,
		Permissions:        m.Permissions,
		CreatedAt:          m.CreatedAt,
	}
	if m.PermissionChecked != nil {
		entry.PermissionChecked = domain.PermissionKey(*m.PermissionChecked)
	}
	if m.Error != nil {
		entry.Error = *m.Error
	}

	return entry
}
