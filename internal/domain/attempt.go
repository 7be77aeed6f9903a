package domain

import "time"

// NotificationAttempt records a single send attempt inside one retry-policy execution.
type NotificationAttempt struct {
	ID                string
	LogID             string
	AttemptNumber     int
	Provider          string
	ProviderMessageID *string
	Error             *string
	DurationMillis    int64
	CreatedAt         time.Time
}
