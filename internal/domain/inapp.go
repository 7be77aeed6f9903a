package domain

import "time"

// InAppNotification is an entry in a user's in-app inbox.
type InAppNotification struct {
	ID        string
	LogID     string
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	Priority  Priority
	Metadata  map[string]string
	IsRead    bool
	CreatedAt time.Time
	ReadAt    *time.Time
}
