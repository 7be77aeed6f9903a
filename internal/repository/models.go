package repository

import (
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// NotificationLogModel is the persistence model for the notification_logs table.
type NotificationLogModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	Channel           domain.Channel          `gorm:"type:varchar(16);not null"`
	Type              domain.NotificationType `gorm:"type:varchar(20);not null"`
	Recipient         string                  `gorm:"type:varchar(512);not null"`
	Subject           string                  `gorm:"type:varchar(255)"`
	Message           string                  `gorm:"type:text;not null"`
	Status            domain.Status           `gorm:"type:varchar(16);not null"`
	Provider          *string                 `gorm:"type:varchar(64)"`
	ProviderMessageID *string                 `gorm:"type:varchar(255)"`
	ErrorMessage      *string                 `gorm:"type:text"`
	Priority          domain.Priority         `gorm:"type:varchar(10);not null"`
	RetryCount        int                     `gorm:"not null;default:0"`
	Metadata          map[string]string       `gorm:"type:jsonb;serializer:json"`
	CreatedAt         time.Time               `gorm:"not null"`
	UpdatedAt         time.Time               `gorm:"not null"`
	SentAt            *time.Time
}

func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

// NotificationAttemptModel is the persistence model for notification_attempts.
type NotificationAttemptModel struct {
	ID                string  `gorm:"type:uuid;primaryKey"`
	LogID             string  `gorm:"type:uuid;not null"`
	AttemptNumber     int     `gorm:"not null"`
	Provider          string  `gorm:"type:varchar(64)"`
	ProviderMessageID *string `gorm:"type:varchar(255)"`
	Error             *string `gorm:"type:text"`
	DurationMillis    int64   `gorm:"not null;default:0"`
	CreatedAt         time.Time
}

func (NotificationAttemptModel) TableName() string {
	return "notification_attempts"
}

// InAppNotificationModel is the persistence model for in_app_notifications.
type InAppNotificationModel struct {
	ID        string                  `gorm:"type:uuid;primaryKey"`
	LogID     *string                 `gorm:"type:uuid"`
	UserID    string                  `gorm:"type:varchar(100);not null"`
	Title     string                  `gorm:"type:varchar(255)"`
	Message   string                  `gorm:"type:text;not null"`
	Type      domain.NotificationType `gorm:"type:varchar(20);not null"`
	Priority  domain.Priority         `gorm:"type:varchar(10);not null"`
	Metadata  map[string]string       `gorm:"type:jsonb;serializer:json"`
	IsRead    bool                    `gorm:"not null;default:false"`
	CreatedAt time.Time
	ReadAt    *time.Time
}

func (InAppNotificationModel) TableName() string {
	return "in_app_notifications"
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func logModelFromDomain(l *domain.NotificationLog) *NotificationLogModel {
	if l == nil {
		return nil
	}

	return &NotificationLogModel{
		ID:                l.ID,
		Channel:           l.Channel,
		Type:              l.Type,
		Recipient:         l.Recipient,
		Subject:           l.Subject,
		Message:           l.Message,
		Status:            l.Status,
		Provider:          optionalString(l.Provider),
		ProviderMessageID: optionalString(l.ProviderMessageID),
		ErrorMessage:      optionalString(l.ErrorMessage),
		Priority:          l.Priority,
		RetryCount:        l.RetryCount,
		Metadata:          l.Metadata,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
		SentAt:            l.SentAt,
	}
}

func logModelToDomain(m *NotificationLogModel) *domain.NotificationLog {
	if m == nil {
		return nil
	}

	return &domain.NotificationLog{
		ID:                m.ID,
		Channel:           m.Channel,
		Type:              m.Type,
		Recipient:         m.Recipient,
		Subject:           m.Subject,
		Message:           m.Message,
		Status:            m.Status,
		Provider:          derefString(m.Provider),
		ProviderMessageID: derefString(m.ProviderMessageID),
		ErrorMessage:      derefString(m.ErrorMessage),
		Priority:          m.Priority,
		RetryCount:        m.RetryCount,
		Metadata:          m.Metadata,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		SentAt:            m.SentAt,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *NotificationAttemptModel {
	if a == nil {
		return nil
	}

	return &NotificationAttemptModel{
		ID:                a.ID,
		LogID:             a.LogID,
		AttemptNumber:     a.AttemptNumber,
		Provider:          a.Provider,
		ProviderMessageID: a.ProviderMessageID,
		Error:             a.Error,
		DurationMillis:    a.DurationMillis,
		CreatedAt:         a.CreatedAt,
	}
}

func attemptModelToDomain(m *NotificationAttemptModel) *domain.NotificationAttempt {
	if m == nil {
		return nil
	}

	return &domain.NotificationAttempt{
		ID:                m.ID,
		LogID:             m.LogID,
		AttemptNumber:     m.AttemptNumber,
		Provider:          m.Provider,
		ProviderMessageID: m.ProviderMessageID,
		Error:             m.Error,
		DurationMillis:    m.DurationMillis,
		CreatedAt:         m.CreatedAt,
	}
}

func inAppModelFromDomain(n *domain.InAppNotification) *InAppNotificationModel {
	if n == nil {
		return nil
	}

	return &InAppNotificationModel{
		ID:        n.ID,
		LogID:     optionalString(n.LogID),
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Priority:  n.Priority,
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}

func inAppModelToDomain(m *InAppNotificationModel) *domain.InAppNotification {
	if m == nil {
		return nil
	}

	return &domain.InAppNotification{
		ID:        m.ID,
		LogID:     derefString(m.LogID),
		UserID:    m.UserID,
		Title:     m.Title,
		Message:   m.Message,
		Type:      m.Type,
		Priority:  m.Priority,
		Metadata:  m.Metadata,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
		ReadAt:    m.ReadAt,
	}
}
