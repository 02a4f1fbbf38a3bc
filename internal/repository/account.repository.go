package repository

import (
	"context"
	"errors"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound is returned when a provider account does not exist.
	ErrAccountNotFound = errors.New("provider account not found")
)

type AccountRepository struct {
	*pg.DB
}

func NewAccountRepository(db *pg.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

func (r *AccountRepository) Create(ctx context.Context, a *model.ProviderAccount) (*model.ProviderAccount, error) {
	entity := toAccountEntity(a)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toAccountModel(entity), nil
}

func (r *AccountRepository) Get(ctx context.Context, id int64) (*model.ProviderAccount, error) {
	var entity ProviderAccountEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return toAccountModel(&entity), nil
}

func (r *AccountRepository) List(ctx context.Context, enabledOnly bool) ([]*model.ProviderAccount, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&ProviderAccountEntity{})
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}

	var entities []*ProviderAccountEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toAccountModels(entities), nil
}

func (r *AccountRepository) Update(ctx context.Context, a *model.ProviderAccount) (*model.ProviderAccount, error) {
	entity := toAccountEntity(a)

	result := r.Write(ctx).WithContext(ctx).
		Model(&ProviderAccountEntity{}).
		Where("id = ?", entity.ID).
		Updates(entity)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}
	return r.Get(ctx, entity.ID)
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Where("id = ?", id).
		Delete(&ProviderAccountEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateQuotaCounters persists the limiter's view of an account's windows.
// The limiter holds the per-account mutex while calling this, so a plain
// update is safe.
func (r *AccountRepository) UpdateQuotaCounters(ctx context.Context, a *model.ProviderAccount) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ProviderAccountEntity{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"sent_this_hour":  a.SentThisHour,
			"sent_today":      a.SentToday,
			"last_reset_hour": a.LastResetHour,
			"last_reset_day":  a.LastResetDay,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
