package repository

import (
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/lib/pq"
)

type SendLogEntryEntity struct {
	ID                int64     `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID        int64     `db:"campaign_id"         gorm:"column:campaign_id;not null;index"`
	RecipientID       int64     `db:"recipient_id"        gorm:"column:recipient_id;not null;index"`
	ProviderType      string    `db:"provider_type"       gorm:"column:provider_type"`
	ProviderAccountID int64     `db:"provider_account_id" gorm:"column:provider_account_id;index"`
	Status            string    `db:"status"              gorm:"column:status;not null;index"`
	MessageID         string    `db:"message_id"          gorm:"column:message_id"`
	Response          string    `db:"response"            gorm:"column:response"`
	Timestamp         time.Time `db:"timestamp"           gorm:"column:timestamp;autoCreateTime"`
}

func (SendLogEntryEntity) TableName() string {
	return "send_logs"
}

func toSendLogEntity(m *model.SendLogEntry) *SendLogEntryEntity {
	if m == nil {
		return nil
	}
	return &SendLogEntryEntity{
		ID:                m.ID,
		CampaignID:        m.CampaignID,
		RecipientID:       m.RecipientID,
		ProviderType:      m.ProviderType,
		ProviderAccountID: m.ProviderAccountID,
		Status:            m.Status,
		MessageID:         m.MessageID,
		Response:          m.Response,
		Timestamp:         m.Timestamp,
	}
}

func toSendLogModel(e *SendLogEntryEntity) *model.SendLogEntry {
	if e == nil {
		return nil
	}
	return &model.SendLogEntry{
		ID:                e.ID,
		CampaignID:        e.CampaignID,
		RecipientID:       e.RecipientID,
		ProviderType:      e.ProviderType,
		ProviderAccountID: e.ProviderAccountID,
		Status:            e.Status,
		MessageID:         e.MessageID,
		Response:          e.Response,
		Timestamp:         e.Timestamp,
	}
}

func toSendLogModels(entities []*SendLogEntryEntity) []*model.SendLogEntry {
	if entities == nil {
		return nil
	}
	models := make([]*model.SendLogEntry, len(entities))
	for i, e := range entities {
		models[i] = toSendLogModel(e)
	}
	return models
}

// CampaignWithLogsEntity is the flattened export row: one campaign with
// its log columns aggregated into parallel postgres arrays.
type CampaignWithLogsEntity struct {
	ID            int64          `gorm:"column:id"`
	Name          string         `gorm:"column:name"`
	Subject       string         `gorm:"column:subject"`
	Status        string         `gorm:"column:status"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	LogIDs        pq.Int64Array  `gorm:"column:log_ids;type:bigint[]"`
	RecipientIDs  pq.Int64Array  `gorm:"column:recipient_ids;type:bigint[]"`
	LogStatuses   pq.StringArray `gorm:"column:log_statuses;type:text[]"`
	LogProviders  pq.StringArray `gorm:"column:log_providers;type:text[]"`
	LogMessageIDs pq.StringArray `gorm:"column:log_message_ids;type:text[]"`
	LogResponses  pq.StringArray `gorm:"column:log_responses;type:text[]"`
	LogTimestamps pq.StringArray `gorm:"column:log_timestamps;type:text[]"`
}

func toCampaignWithLogsModel(e *CampaignWithLogsEntity) *model.CampaignWithSendLogs {
	if e == nil {
		return nil
	}
	c := &model.CampaignWithSendLogs{
		ID:        e.ID,
		Name:      e.Name,
		Subject:   e.Subject,
		Status:    model.CampaignStatus(e.Status),
		CreatedAt: e.CreatedAt,
		SendLogs:  make([]*model.SendLogEntry, 0, len(e.LogIDs)),
	}
	for i := range e.LogIDs {
		entry := &model.SendLogEntry{
			ID:         e.LogIDs[i],
			CampaignID: e.ID,
		}
		if i < len(e.RecipientIDs) {
			entry.RecipientID = e.RecipientIDs[i]
		}
		if i < len(e.LogStatuses) {
			entry.Status = e.LogStatuses[i]
		}
		if i < len(e.LogProviders) {
			entry.ProviderType = e.LogProviders[i]
		}
		if i < len(e.LogMessageIDs) {
			entry.MessageID = e.LogMessageIDs[i]
		}
		if i < len(e.LogResponses) {
			entry.Response = e.LogResponses[i]
		}
		if i < len(e.LogTimestamps) {
			if ts, err := time.Parse(time.RFC3339Nano, e.LogTimestamps[i]); err == nil {
				entry.Timestamp = ts
			}
		}
		c.SendLogs = append(c.SendLogs, entry)
	}
	return c
}
