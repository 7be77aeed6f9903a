package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrChannelNotSupported = errors.New("channel not supported")
	ErrSendFailed          = errors.New("send failed")
	ErrRetryExhausted      = errors.New("retry exhausted")
)

// FieldError identifies the request field and channel that failed validation.
type FieldError struct {
	Field   string
	Channel Channel
	Reason  string
}

func (e *FieldError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s: %s (channel=%s): %s", ErrValidation, e.Field, e.Channel, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// RetryExhaustedError reports a dispatch whose every attempt failed.
type RetryExhaustedError struct {
	LogID       string
	MaxAttempts int
	Attempts    int
	Cause       error
}

func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("%s: notification %s failed after %d/%d attempts", ErrRetryExhausted, e.LogID, e.Attempts, e.MaxAttempts)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

func (e *RetryExhaustedError) Unwrap() error { return e.Cause }
