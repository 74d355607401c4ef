package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Denials and errors are what reviewers page through; index them separately.
func addAccessAuditDecisionIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_access_audit_decision_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_access_audit_denied ON access_audit_log (target_user_id, reason) WHERE allowed = false`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_access_audit_denied`).Error
		},
	}
}
