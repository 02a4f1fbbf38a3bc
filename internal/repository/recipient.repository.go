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
	// ErrRecipientNotFound is returned when a recipient does not exist.
	ErrRecipientNotFound = errors.New("recipient not found")
)

type RecipientRepository struct {
	*pg.DB
}

func NewRecipientRepository(db *pg.DB) *RecipientRepository {
	return &RecipientRepository{
		db,
	}
}

func (r *RecipientRepository) Create(ctx context.Context, rec *model.Recipient) (*model.Recipient, error) {
	entity := toRecipientEntity(rec)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toRecipientModel(entity), nil
}

// BatchCreate inserts recipients in chunks. Used by the CSV import.
func (r *RecipientRepository) BatchCreate(ctx context.Context, recs []*model.Recipient) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	entities := make([]*RecipientEntity, len(recs))
	for i, m := range recs {
		entities[i] = toRecipientEntity(m)
	}
	if err := r.Write(ctx).WithContext(ctx).CreateInBatches(entities, 500).Error; err != nil {
		return 0, err
	}
	return len(entities), nil
}

func (r *RecipientRepository) Get(ctx context.Context, id int64) (*model.Recipient, error) {
	var entity RecipientEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return toRecipientModel(&entity), nil
}

func (r *RecipientRepository) List(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&RecipientEntity{})

	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Email != nil && *f.Email != "" {
		q = q.Where("email = ?", model.NormalizeEmail(*f.Email))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*RecipientEntity
	if err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toRecipientModels(entities), total, nil
}

// PendingByCampaign returns every recipient still awaiting a send, in id
// order. The dispatcher walks this slice; resuming a paused campaign is
// just calling this again.
func (r *RecipientRepository) PendingByCampaign(ctx context.Context, campaignID int64) ([]*model.Recipient, error) {
	var entities []*RecipientEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, string(model.RecipientStatusPending)).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toRecipientModels(entities), nil
}

// EmailsByCampaign returns the normalized address set already present in a
// campaign, for import dedupe.
func (r *RecipientRepository) EmailsByCampaign(ctx context.Context, campaignID int64) (map[string]struct{}, error) {
	var emails []string
	err := r.Read(ctx).WithContext(ctx).
		Model(&RecipientEntity{}).
		Where("campaign_id = ?", campaignID).
		Pluck("email", &emails).
		Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[model.NormalizeEmail(e)] = struct{}{}
	}
	return set, nil
}

// MarkSent records a successful delivery attempt.
func (r *RecipientRepository) MarkSent(ctx context.Context, id int64, messageID, providerType string, retryCount int) error {
	now := time.Now()
	return r.update(ctx, id, map[string]interface{}{
		"status":        string(model.RecipientStatusSent),
		"message_id":    messageID,
		"provider_type": providerType,
		"retry_count":   retryCount,
		"error_message": "",
		"sent_at":       now,
	})
}

// MarkFailed records a terminal failure for one recipient.
func (r *RecipientRepository) MarkFailed(ctx context.Context, id int64, providerType, errorMessage string, retryCount int) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        string(model.RecipientStatusFailed),
		"provider_type": providerType,
		"error_message": errorMessage,
		"retry_count":   retryCount,
	})
}

func (r *RecipientRepository) UpdateStatus(ctx context.Context, id int64, status model.RecipientStatus) error {
	return r.update(ctx, id, map[string]interface{}{"status": string(status)})
}

func (r *RecipientRepository) update(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&RecipientEntity{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

// CountByStatus returns per-status totals for one campaign.
func (r *RecipientRepository) CountByStatus(ctx context.Context, campaignID int64) (map[model.RecipientStatus]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.Read(ctx).WithContext(ctx).
		Model(&RecipientEntity{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.RecipientStatus]int64, len(rows))
	for _, rw := range rows {
		counts[model.RecipientStatus(rw.Status)] = rw.Count
	}
	return counts, nil
}
