package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultAuditListLimit = 50
	maxAuditListLimit     = 500
)

type AuditRepository interface {
	RecordAccess(ctx context.Context, entry *domain.AccessAuditEntry) error
	ListByTargetUser(ctx context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error)
}

type GormAuditRepo struct {
	db *gorm.DB
}

func NewGormAuditRepo(db *gorm.DB) *GormAuditRepo {
	return &GormAuditRepo{db: db}
}

func (r *GormAuditRepo) RecordAccess(ctx context.Context, entry *domain.AccessAuditEntry) error {
	if entry == nil {
		return nil
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	model := auditModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormAuditRepo) ListByTargetUser(ctx context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error) {
	if limit < 1 {
		limit = defaultAuditListLimit
	}
	limit = min(limit, maxAuditListLimit)

	var models []AccessAuditModel
	err := r.db.WithContext(ctx).
		Where("target_user_id = ?", targetUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AccessAuditEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *auditModelToDomain(&models[i]))
	}

	return entries, nil
}
