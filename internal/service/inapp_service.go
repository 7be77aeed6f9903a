package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
)

// InboxService serves a user's stored in-app notifications.
type InboxService struct {
	repo   repository.InAppRepository
	pusher provider.RealtimePusher
	logger *zap.Logger
	now    func() time.Time
}

// NewInboxService builds the inbox service. pusher may be nil, in which case read-state
// changes are not broadcast.
func NewInboxService(repo repository.InAppRepository, pusher provider.RealtimePusher, logger *zap.Logger) (*InboxService, error) {
	if repo == nil {
		return nil, fmt.Errorf("in-app repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InboxService{repo: repo, pusher: pusher, logger: logger, now: time.Now}, nil
}

func (s *InboxService) List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.InAppNotification, int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, 0, &domain.FieldError{Field: "userId", Reason: "userId is required"}
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, page, pageSize)
}

func (s *InboxService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, &domain.FieldError{Field: "userId", Reason: "userId is required"}
	}
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead flags an entry as read and publishes the owner's new unread count.
func (s *InboxService) MarkRead(ctx context.Context, id string) (*domain.InAppNotification, error) {
	n, err := s.repo.MarkRead(ctx, strings.TrimSpace(id), s.now().UTC())
	if err != nil {
		return nil, err
	}

	if s.pusher != nil {
		count, err := s.repo.CountUnread(ctx, n.UserID)
		if err != nil {
			s.logger.Warn("failed to count unread notifications", zap.String("userId", n.UserID), zap.Error(err))
			return n, nil
		}
		if err := s.pusher.PushUnreadCount(ctx, n.UserID, count); err != nil {
			s.logger.Warn("failed to push unread count", zap.String("userId", n.UserID), zap.Error(err))
		}
	}
	return n, nil
}
