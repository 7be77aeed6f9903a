package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification log row.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusRetrying Status = "RETRYING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRetrying, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed on the row.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransitionTo encodes PENDING -> {SENT | RETRYING* -> SENT | RETRYING* -> FAILED | FAILED}.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending, StatusRetrying:
		return next == StatusRetrying || next == StatusSent || next == StatusFailed
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// NotificationLog is the durable audit record for one dispatch attempt chain.
type NotificationLog struct {
	ID                string
	Channel           Channel
	Type              NotificationType
	Recipient         string
	Subject           string
	Message           string
	Status            Status
	Provider          string
	ProviderMessageID string
	ErrorMessage      string
	Priority          Priority
	RetryCount        int
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SentAt            *time.Time
}

// NewPendingLog builds the initial row for a validated request.
func NewPendingLog(id string, req NotificationRequest, now time.Time) *NotificationLog {
	return &NotificationLog{
		ID:         id,
		Channel:    req.Channel,
		Type:       req.Type,
		Recipient:  req.Recipient,
		Subject:    req.Subject,
		Message:    req.Message,
		Status:     StatusPending,
		Priority:   req.Priority,
		RetryCount: 0,
		Metadata:   maps.Clone(req.Metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (l *NotificationLog) transition(next Status, now time.Time) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: notification %s cannot move from %s to %s", ErrConflict, l.ID, l.Status, next)
	}
	l.Status = next
	l.UpdatedAt = now
	return nil
}

// MarkRetrying records that attempt number attempt (>= 2) is about to run.
func (l *NotificationLog) MarkRetrying(attempt int, now time.Time) error {
	if err := l.transition(StatusRetrying, now); err != nil {
		return err
	}
	l.RetryCount = attempt
	return nil
}

// MarkSent finalizes a successful chain. SentAt is only ever set once.
func (l *NotificationLog) MarkSent(provider, providerMessageID string, attempts int, now time.Time) error {
	if err := l.transition(StatusSent, now); err != nil {
		return err
	}
	if l.SentAt == nil {
		sentAt := now
		l.SentAt = &sentAt
	}
	l.Provider = provider
	l.ProviderMessageID = providerMessageID
	l.RetryCount = attempts
	l.ErrorMessage = ""
	return nil
}

// MarkFailed finalizes a chain that did not succeed.
func (l *NotificationLog) MarkFailed(errorMessage string, attempts int, now time.Time) error {
	if err := l.transition(StatusFailed, now); err != nil {
		return err
	}
	l.ErrorMessage = errorMessage
	l.RetryCount = attempts
	return nil
}

// IsRetryable reports whether the recovery loop may replay this row.
func (l *NotificationLog) IsRetryable(maxAttempts int) bool {
	return l.Status == StatusFailed && l.RetryCount < maxAttempts
}

// ToRequest rebuilds a dispatch request from the row. Resend and replay use this, so the
// new chain never references the original row.
func (l *NotificationLog) ToRequest() NotificationRequest {
	return NotificationRequest{
		Channel:   l.Channel,
		Type:      l.Type,
		Recipient: l.Recipient,
		Subject:   l.Subject,
		Message:   l.Message,
		Priority:  l.Priority,
		Metadata:  maps.Clone(l.Metadata),
	}
}
