package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

type InAppRepository interface {
	Create(ctx context.Context, n *domain.InAppNotification) error
	GetByID(ctx context.Context, id string) (*domain.InAppNotification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.InAppNotification, int64, error)
	MarkRead(ctx context.Context, id string, readAt time.Time) (*domain.InAppNotification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type GormInAppRepo struct {
	db *gorm.DB
}

func NewGormInAppRepo(db *gorm.DB) *GormInAppRepo {
	return &GormInAppRepo{db: db}
}

func (r *GormInAppRepo) Create(ctx context.Context, n *domain.InAppNotification) error {
	model := inAppModelFromDomain(n)
	if model == nil {
		return fmt.Errorf("in-app notification is required")
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*n = *inAppModelToDomain(model)
	return nil
}

func (r *GormInAppRepo) GetByID(ctx context.Context, id string) (*domain.InAppNotification, error) {
	if !isRowID(id) {
		return nil, domain.ErrNotFound
	}

	var model InAppNotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inAppModelToDomain(&model), nil
}

func (r *GormInAppRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.InAppNotification, int64, error) {
	params := ListParams{Page: page, PageSize: pageSize}.Normalize()

	query := r.db.WithContext(ctx).Model(&InAppNotificationModel{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []InAppNotificationModel
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.InAppNotification, 0, len(models))
	for i := range models {
		out = append(out, *inAppModelToDomain(&models[i]))
	}
	return out, total, nil
}

// MarkRead flags the entry as read. Marking an already-read entry is a no-op that returns
// the stored row.
func (r *GormInAppRepo) MarkRead(ctx context.Context, id string, readAt time.Time) (*domain.InAppNotification, error) {
	if !isRowID(id) {
		return nil, domain.ErrNotFound
	}

	result := r.db.WithContext(ctx).
		Model(&InAppNotificationModel{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": readAt,
		})
	if result.Error != nil {
		return nil, result.Error
	}

	return r.GetByID(ctx, id)
}

func (r *GormInAppRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&InAppNotificationModel{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
