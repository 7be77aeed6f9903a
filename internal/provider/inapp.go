package provider

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
)

const (
	inAppProviderName       = "in-app"
	defaultRealtimeDeadline = 5 * time.Second
)

// InAppStore persists inbox entries.
type InAppStore interface {
	Create(ctx context.Context, n *domain.InAppNotification) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// RealtimePusher delivers inbox events to a user's live connection.
type RealtimePusher interface {
	PushNotification(ctx context.Context, n *domain.InAppNotification) error
	PushUnreadCount(ctx context.Context, userID string, count int64) error
}

// InAppSender stores the notification in the user's inbox and then notifies any live
// connection. The real-time push never affects the send outcome.
type InAppSender struct {
	store  InAppStore
	pusher RealtimePusher
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
	// push runs the real-time delivery; tests replace it to run inline.
	push func(fn func())
}

func NewInAppSender(store InAppStore, pusher RealtimePusher, logger *zap.Logger) (*InAppSender, error) {
	if store == nil {
		return nil, fmt.Errorf("in-app store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InAppSender{
		store:  store,
		pusher: pusher,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		push:   func(fn func()) { go fn() },
	}, nil
}

func (s *InAppSender) Name() string { return inAppProviderName }

func (s *InAppSender) Supports(channel domain.Channel) bool { return channel == domain.ChannelInApp }

func (s *InAppSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if req.Channel != domain.ChannelInApp {
		return nil, &ProviderError{Provider: inAppProviderName, Message: fmt.Sprintf("cannot deliver %s", req.Channel)}
	}

	now := s.now().UTC()
	entry := &domain.InAppNotification{
		ID:        s.newID(),
		LogID:     LogIDFromContext(ctx),
		UserID:    req.Recipient,
		Title:     req.Subject,
		Message:   req.Message,
		Type:      req.Type,
		Priority:  req.Priority,
		Metadata:  maps.Clone(req.Metadata),
		CreatedAt: now,
	}

	if err := s.store.Create(ctx, entry); err != nil {
		return nil, &ProviderError{
			Provider:  inAppProviderName,
			Message:   "failed to store in-app notification",
			Transient: true,
			Cause:     err,
		}
	}

	if s.pusher != nil {
		pushed := *entry
		s.push(func() { s.pushRealtime(&pushed) })
	}

	resp := successResponse(inAppProviderName, entry.ID, "in-app notification stored", now, map[string]any{
		"userId": entry.UserID,
	})
	resp.NotificationID = entry.ID
	return resp, nil
}

func (s *InAppSender) pushRealtime(entry *domain.InAppNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRealtimeDeadline)
	defer cancel()

	logger := s.logger.With(zap.String("userId", entry.UserID), zap.String("inAppId", entry.ID))

	if err := s.pusher.PushNotification(ctx, entry); err != nil {
		logger.Warn("failed to push in-app notification", zap.Error(err))
	}

	count, err := s.store.CountUnread(ctx, entry.UserID)
	if err != nil {
		logger.Warn("failed to count unread in-app notifications", zap.Error(err))
		return
	}
	if err := s.pusher.PushUnreadCount(ctx, entry.UserID, count); err != nil {
		logger.Warn("failed to push unread count", zap.Error(err))
	}
}
