package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addNotificationLogsRecoveryIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_add_notification_logs_recovery_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notification_logs_failed_retry ON notification_logs (retry_count, created_at) WHERE status = 'FAILED'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_notification_logs_failed_retry`).Error
		},
	}
}
