package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	EventNewNotification = "NEW_NOTIFICATION"
	EventUnreadCount     = "UNREAD_COUNT"
)

// UserChannel is the pub/sub channel a user's live connections subscribe to.
func UserChannel(userID string) string {
	return "notifications:user:" + userID
}

type realtimeNotification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Priority  string            `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RealtimeEvent is the JSON envelope published to UserChannel.
type RealtimeEvent struct {
	Type         string                `json:"type"`
	Notification *realtimeNotification `json:"notification,omitempty"`
	Count        *int64                `json:"count,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

// Pusher publishes in-app events over Redis pub/sub. Connection gateways subscribe to the
// user channel and forward events to live sockets.
type Pusher struct {
	client goredis.Cmdable
	now    func() time.Time
}

func NewPusher(client goredis.Cmdable) (*Pusher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Pusher{client: client, now: time.Now}, nil
}

func (p *Pusher) PushNotification(ctx context.Context, n *domain.InAppNotification) error {
	if n == nil {
		return fmt.Errorf("in-app notification is required")
	}

	return p.publish(ctx, n.UserID, RealtimeEvent{
		Type: EventNewNotification,
		Notification: &realtimeNotification{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type.String(),
			Priority:  n.Priority.String(),
			Metadata:  n.Metadata,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		},
	})
}

func (p *Pusher) PushUnreadCount(ctx context.Context, userID string, count int64) error {
	return p.publish(ctx, userID, RealtimeEvent{Type: EventUnreadCount, Count: &count})
}

func (p *Pusher) publish(ctx context.Context, userID string, event RealtimeEvent) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	event.Timestamp = p.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}
