package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// timeoutSender bounds every Send with a per-provider deadline.
type timeoutSender struct {
	Sender
	timeout time.Duration
}

// WithTimeout wraps sender so each call runs under its own deadline. Hitting that deadline
// is reported as a transient ProviderError. A non-positive timeout returns sender as is.
func WithTimeout(sender Sender, timeout time.Duration) Sender {
	if sender == nil || timeout <= 0 {
		return sender
	}
	return &timeoutSender{Sender: sender, timeout: timeout}
}

func (s *timeoutSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.Sender.Send(callCtx, req)
	if err == nil {
		return resp, nil
	}

	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, &ProviderError{
			Provider:  s.Name(),
			Message:   fmt.Sprintf("send timed out after %s", s.timeout),
			Transient: true,
			Cause:     err,
		}
	}
	return nil, err
}
