package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttemptRepository is the per-send audit trail of a log row.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.NotificationAttempt) error
	GetByLogID(ctx context.Context, logID string) ([]domain.NotificationAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

// Create records one attempt. A second insert for the same (log, attempt number) pair is
// ignored, so a replayed audit write never duplicates history.
func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.NotificationAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", domain.ErrValidation)
	}
	if !isRowID(a.LogID) {
		return fmt.Errorf("%w: attempt log id %q is not a uuid", domain.ErrValidation, a.LogID)
	}
	if a.AttemptNumber < 1 {
		return fmt.Errorf("%w: attempt number must be >= 1, got %d", domain.ErrValidation, a.AttemptNumber)
	}

	model := attemptModelFromDomain(a)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "log_id"}, {Name: "attempt_number"}},
			DoNothing: true,
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	*a = *attemptModelToDomain(model)
	return nil
}

// GetByLogID returns the attempts of one log row in attempt order. Unknown or malformed
// ids yield an empty trail.
func (r *GormAttemptRepo) GetByLogID(ctx context.Context, logID string) ([]domain.NotificationAttempt, error) {
	if !isRowID(logID) {
		return []domain.NotificationAttempt{}, nil
	}

	var models []NotificationAttemptModel
	err := r.db.WithContext(ctx).
		Where(&NotificationAttemptModel{LogID: logID}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "attempt_number"}}).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list attempts of %s: %w", logID, err)
	}

	attempts := make([]domain.NotificationAttempt, len(models))
	for i := range models {
		attempts[i] = *attemptModelToDomain(&models[i])
	}
	return attempts, nil
}
