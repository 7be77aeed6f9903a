package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func TestPusherPublishesUserEvents(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniredis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, UserChannel("user-1"))
	t.Cleanup(func() {
		_ = sub.Close()
	})
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe confirmation error = %v", err)
	}

	pusher, err := NewPusher(rdb)
	if err != nil {
		t.Fatalf("NewPusher() error = %v", err)
	}
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pusher.now = func() time.Time { return fixed }

	entry := &domain.InAppNotification{
		ID:       "inapp-1",
		UserID:   "user-1",
		Title:    "Hi",
		Message:  "welcome",
		Type:     domain.TypeSystem,
		Priority: domain.PriorityLow,
	}
	if err := pusher.PushNotification(ctx, entry); err != nil {
		t.Fatalf("PushNotification() error = %v", err)
	}
	if err := pusher.PushUnreadCount(ctx, "user-1", 3); err != nil {
		t.Fatalf("PushUnreadCount() error = %v", err)
	}

	first := receiveEvent(ctx, t, sub.Channel())
	if first.Type != EventNewNotification || first.Notification == nil || first.Notification.ID != "inapp-1" {
		t.Fatalf("first event = %+v", first)
	}
	if !first.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %s, want %s", first.Timestamp, fixed)
	}

	second := receiveEvent(ctx, t, sub.Channel())
	if second.Type != EventUnreadCount || second.Count == nil || *second.Count != 3 {
		t.Fatalf("second event = %+v", second)
	}
}

func TestPusherRequiresUser(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniredis(t)
	pusher, err := NewPusher(rdb)
	if err != nil {
		t.Fatalf("NewPusher() error = %v", err)
	}

	if err := pusher.PushUnreadCount(context.Background(), "", 1); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func receiveEvent(ctx context.Context, t *testing.T, ch <-chan *goredis.Message) RealtimeEvent {
	t.Helper()

	select {
	case msg := <-ch:
		var event RealtimeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return event
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	return RealtimeEvent{}
}
