package repository

import (
	"context"
	"errors"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

type SendLogRepository struct {
	*pg.DB
}

func NewSendLogRepository(db *pg.DB) *SendLogRepository {
	return &SendLogRepository{
		db,
	}
}

// Append writes one terminal attempt outcome. The log is append-only;
// there are no update or delete operations.
func (r *SendLogRepository) Append(ctx context.Context, entry *model.SendLogEntry) (*model.SendLogEntry, error) {
	entity := toSendLogEntity(entry)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toSendLogModel(entity), nil
}

func (r *SendLogRepository) List(ctx context.Context, f model.SendLogFilter) ([]*model.SendLogEntry, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&SendLogEntryEntity{})

	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("timestamp >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("timestamp < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "timestamp"
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

	var entities []*SendLogEntryEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toSendLogModels(entities), total, nil
}

// GetCampaignWithLogs loads one campaign with every log entry aggregated
// into arrays, for the CSV export. Postgres only.
func (r *SendLogRepository) GetCampaignWithLogs(ctx context.Context, campaignID int64) (*model.CampaignWithSendLogs, error) {
	var entity CampaignWithLogsEntity
	err := r.Read(ctx).WithContext(ctx).
		Table("campaigns AS c").
		Select(`
            c.id                                                        AS id,
            c.name                                                      AS name,
            c.subject                                                   AS subject,
            c.status                                                    AS status,
            c.created_at                                                AS created_at,
            COALESCE(array_agg(sl.id ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS log_ids,
            COALESCE(array_agg(sl.recipient_id ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS recipient_ids,
            COALESCE(array_agg(sl.status ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS log_statuses,
            COALESCE(array_agg(sl.provider_type ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS log_providers,
            COALESCE(array_agg(sl.message_id ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS log_message_ids,
            COALESCE(array_agg(sl.response ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS log_responses,
            COALESCE(array_agg(to_char(sl.timestamp, 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"') ORDER BY sl.id)
                FILTER (WHERE sl.id IS NOT NULL), '{}')                 AS log_timestamps
        `).
		Joins("LEFT JOIN send_logs AS sl ON sl.campaign_id = c.id").
		Where("c.id = ?", campaignID).
		Group("c.id, c.name, c.subject, c.status, c.created_at").
		Take(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toCampaignWithLogsModel(&entity), nil
}
