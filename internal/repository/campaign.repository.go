package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrStatusConflict is returned when a guarded status transition
	// matched no row, i.e. another writer changed the status first.
	ErrStatusConflict = errors.New("campaign status changed concurrently")
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	entity := toCampaignEntity(c)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	var entity CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toCampaignModel(&entity), nil
}

func (r *CampaignRepository) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&CampaignEntity{})

	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*CampaignEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toCampaignModels(entities), total, nil
}

// Delete removes a campaign with its recipients and send logs. The
// dependent rows are deleted explicitly so the behavior does not hinge
// on foreign key enforcement being switched on.
func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.Write(ctx).Where("campaign_id = ?", id).Delete(&SendLogEntryEntity{}).Error; err != nil {
			return err
		}
		if err := r.Write(ctx).Where("campaign_id = ?", id).Delete(&RecipientEntity{}).Error; err != nil {
			return err
		}
		result := r.Write(ctx).Where("id = ?", id).Delete(&CampaignEntity{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpdateStatus moves a campaign between lifecycle states. When fromStatuses
// is non-empty the update is guarded: it only applies while the stored
// status is still one of them.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int64, to model.CampaignStatus, fromStatuses ...model.CampaignStatus) error {
	q := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ?", id)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}

	updates := map[string]interface{}{"status": string(to)}
	now := time.Now()
	switch to {
	case model.CampaignStatusSending:
		updates["started_at"] = now
	case model.CampaignStatusCompleted:
		updates["completed_at"] = now
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.Read(ctx).WithContext(ctx).
			Model(&CampaignEntity{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

// IncrementSent bumps sent_count and delivered_count together. Delivery is
// counted optimistically at accept time; bounce webhooks would correct it.
func (r *CampaignRepository) IncrementSent(ctx context.Context, id int64) error {
	return r.incrementCounters(ctx, id, map[string]interface{}{
		"sent_count":      gorm.Expr("sent_count + 1"),
		"delivered_count": gorm.Expr("delivered_count + 1"),
	})
}

func (r *CampaignRepository) IncrementFailed(ctx context.Context, id int64) error {
	return r.incrementCounters(ctx, id, map[string]interface{}{
		"failed_count": gorm.Expr("failed_count + 1"),
	})
}

func (r *CampaignRepository) incrementCounters(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshTotal recomputes total_recipients from the recipients table,
// used after a CSV import.
func (r *CampaignRepository) RefreshTotal(ctx context.Context, id int64) (int, error) {
	var total int64
	err := r.Write(ctx).WithContext(ctx).
		Model(&RecipientEntity{}).
		Where("campaign_id = ?", id).
		Count(&total).Error
	if err != nil {
		return 0, err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&CampaignEntity{}).
		Where("id = ?", id).
		Update("total_recipients", total)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return int(total), nil
}

// Stats aggregates dashboard counters across all campaigns.
func (r *CampaignRepository) Stats(ctx context.Context) (*model.CampaignStats, error) {
	stats := &model.CampaignStats{}
	db := r.Read(ctx).WithContext(ctx)

	if err := db.Model(&CampaignEntity{}).Count(&stats.Campaigns).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&CampaignEntity{}).
		Where("status IN ?", []string{string(model.CampaignStatusSending), string(model.CampaignStatusPaused)}).
		Count(&stats.ActiveCampaigns).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&RecipientEntity{}).Count(&stats.Recipients).Error; err != nil {
		return nil, err
	}

	type counters struct {
		Sent   int64
		Failed int64
	}
	var c counters
	err := db.Model(&CampaignEntity{}).
		Select("COALESCE(SUM(sent_count),0) AS sent, COALESCE(SUM(failed_count),0) AS failed").
		Scan(&c).Error
	if err != nil {
		return nil, err
	}
	stats.Sent = c.Sent
	stats.Failed = c.Failed

	if err := db.Model(&SuppressionEntity{}).Count(&stats.Suppressed).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
