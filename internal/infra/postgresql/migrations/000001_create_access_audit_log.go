package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/carecircle-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createAccessAuditLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_access_audit_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AccessAuditModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_access_audit_target_created ON access_audit_log (target_user_id, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_access_audit_requester_created ON access_audit_log (requesting_user_id, created_at DESC)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AccessAuditModel{})
		},
	}
}
