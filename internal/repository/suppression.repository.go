package repository

import (
	"context"
	"errors"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/pg"
	"gorm.io/gorm/clause"
)

var (
	// ErrSuppressionNotFound is returned when an address is not on the list.
	ErrSuppressionNotFound = errors.New("suppression not found")
)

type SuppressionRepository struct {
	*pg.DB
}

func NewSuppressionRepository(db *pg.DB) *SuppressionRepository {
	return &SuppressionRepository{
		db,
	}
}

// Add suppresses an address. Adding an already suppressed address is a
// no-op that keeps the original reason.
func (r *SuppressionRepository) Add(ctx context.Context, s *model.Suppression) (*model.Suppression, error) {
	entity := toSuppressionEntity(s)

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).
		Create(entity).
		Error
	if err != nil {
		return nil, err
	}

	var stored SuppressionEntity
	err = r.Read(ctx).WithContext(ctx).
		Where("email = ?", entity.Email).
		First(&stored).
		Error
	if err != nil {
		return nil, err
	}
	return toSuppressionModel(&stored), nil
}

func (r *SuppressionRepository) Remove(ctx context.Context, email string) error {
	result := r.Write(ctx).WithContext(ctx).
		Where("email = ?", model.NormalizeEmail(email)).
		Delete(&SuppressionEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSuppressionNotFound
	}
	return nil
}

func (r *SuppressionRepository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&SuppressionEntity{}).
		Where("email = ?", model.NormalizeEmail(email)).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SuppressionRepository) List(ctx context.Context, limit, offset int) ([]*model.Suppression, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&SuppressionEntity{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entities []*SuppressionEntity
	if err := q.Order("added_at DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toSuppressionModels(entities), total, nil
}

// AllEmails returns the full normalized address list, used to warm the
// redis cache at boot.
func (r *SuppressionRepository) AllEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.Read(ctx).WithContext(ctx).
		Model(&SuppressionEntity{}).
		Pluck("email", &emails).
		Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}
