package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// isRowID reports whether id can match a uuid primary key. Postgres rejects malformed
// uuids with an error instead of an empty result.
func isRowID(id string) bool {
	return uuid.Validate(id) == nil
}

type ListParams struct {
	Recipient *string
	Channel   *domain.Channel
	Status    *domain.Status
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// Normalize clamps paging to 1-based pages of at most maxPageSize rows.
func (p ListParams) Normalize() ListParams {
	p.Page = max(p.Page, 1)
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	p.PageSize = min(p.PageSize, maxPageSize)
	return p
}

// NotificationLogRepository is the durable store for dispatch chains. Rows are only created
// and updated, never deleted.
type NotificationLogRepository interface {
	Create(ctx context.Context, l *domain.NotificationLog) error
	// UpdateTransition persists l only if the stored row is still in expected status.
	UpdateTransition(ctx context.Context, l *domain.NotificationLog, expected domain.Status) error
	GetByID(ctx context.Context, id string) (*domain.NotificationLog, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]domain.NotificationLog, error)
}

type GormNotificationLogRepo struct {
	db *gorm.DB
}

func NewGormNotificationLogRepo(db *gorm.DB) *GormNotificationLogRepo {
	return &GormNotificationLogRepo{db: db}
}

func (r *GormNotificationLogRepo) Create(ctx context.Context, l *domain.NotificationLog) error {
	model := logModelFromDomain(l)
	if model == nil {
		return fmt.Errorf("notification log is required")
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*l = *logModelToDomain(model)
	return nil
}

func (r *GormNotificationLogRepo) UpdateTransition(ctx context.Context, l *domain.NotificationLog, expected domain.Status) error {
	if l == nil {
		return fmt.Errorf("notification log is required")
	}

	model := logModelFromDomain(l)
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", l.ID, expected).
		Updates(map[string]any{
			"status":              model.Status,
			"provider":            model.Provider,
			"provider_message_id": model.ProviderMessageID,
			"error_message":       model.ErrorMessage,
			"retry_count":         model.RetryCount,
			"updated_at":          model.UpdatedAt,
			"sent_at":             model.SentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&NotificationLogModel{}).Where("id = ?", l.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: notification %s is no longer %s", domain.ErrConflict, l.ID, expected)
}

func (r *GormNotificationLogRepo) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	if !isRowID(id) {
		return nil, domain.ErrNotFound
	}

	var model NotificationLogModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logModelToDomain(&model), nil
}

func (r *GormNotificationLogRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&NotificationLogModel{})

	if params.Recipient != nil {
		query = query.Where("recipient = ?", *params.Recipient)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []NotificationLogModel
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	logs := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *logModelToDomain(&models[i]))
	}

	return logs, total, nil
}

func (r *GormNotificationLogRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]domain.NotificationLog, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", domain.StatusFailed, maxAttempts).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []NotificationLogModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	logs := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *logModelToDomain(&models[i]))
	}

	return logs, nil
}
