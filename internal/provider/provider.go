package provider

import (
	"context"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Sender is the outbound delivery port for one or more channels.
type Sender interface {
	Name() string
	Supports(channel domain.Channel) bool
	Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error)
}

type logIDKey struct{}

// ContextWithLogID attaches the notification log id of the current dispatch so senders can
// use it for correlation and idempotency keys.
func ContextWithLogID(ctx context.Context, logID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, logIDKey{}, logID)
}

func LogIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(logIDKey{}).(string)
	return id
}

func successResponse(provider, messageID, message string, now time.Time, extra map[string]any) *domain.NotificationResponse {
	details := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		details[k] = v
	}
	details[domain.DetailProvider] = provider

	return &domain.NotificationResponse{
		Success:           true,
		Message:           message,
		ProviderMessageID: messageID,
		Timestamp:         now.UTC(),
		Details:           details,
	}
}
