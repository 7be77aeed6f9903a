package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"gorm.io/gorm"
)

func createNotificationLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notification_logs_recipient_created ON notification_logs (recipient, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_logs_channel_created ON notification_logs (channel, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_logs_status ON notification_logs (status)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationLogModel{})
		},
	}
}
