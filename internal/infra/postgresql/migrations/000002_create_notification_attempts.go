package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"gorm.io/gorm"
)

// Attempts are keyed by (log_id, attempt_number) so a retried audit insert is a no-op, and
// removing a log row removes its trail.
func createNotificationAttemptsTable() *gormigrate.Migration {
	const (
		uniqueAttempt = `CREATE UNIQUE INDEX IF NOT EXISTS uq_notification_attempts_log_attempt
			ON notification_attempts (log_id, attempt_number)`
		logForeignKey = `ALTER TABLE notification_attempts
			ADD CONSTRAINT fk_notification_attempts_log
			FOREIGN KEY (log_id) REFERENCES notification_logs (id) ON DELETE CASCADE`
	)

	return &gormigrate.Migration{
		ID: "000002_create_notification_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Migrator().CreateTable(&repository.NotificationAttemptModel{}); err != nil {
				return err
			}
			for _, stmt := range []string{uniqueAttempt, logForeignKey} {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationAttemptModel{})
		},
	}
}
