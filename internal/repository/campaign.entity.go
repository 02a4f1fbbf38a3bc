package repository

import (
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

type CampaignEntity struct {
	ID              int64                 `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Name            string                `db:"name"             gorm:"column:name;not null"`
	Subject         string                `db:"subject"          gorm:"column:subject;not null"`
	BodyHTML        string                `db:"body_html"        gorm:"column:body_html"`
	BodyText        string                `db:"body_text"        gorm:"column:body_text"`
	FromEmail       string                `db:"from_email"       gorm:"column:from_email"`
	FromName        string                `db:"from_name"        gorm:"column:from_name"`
	ReplyTo         string                `db:"reply_to"         gorm:"column:reply_to"`
	Status          string                `db:"status"           gorm:"column:status;not null;default:draft;index"`
	TotalRecipients int                   `db:"total_recipients" gorm:"column:total_recipients;not null;default:0"`
	SentCount       int                   `db:"sent_count"       gorm:"column:sent_count;not null;default:0"`
	DeliveredCount  int                   `db:"delivered_count"  gorm:"column:delivered_count;not null;default:0"`
	BouncedCount    int                   `db:"bounced_count"    gorm:"column:bounced_count;not null;default:0"`
	FailedCount     int                   `db:"failed_count"     gorm:"column:failed_count;not null;default:0"`
	ThrottleRate    float64               `db:"throttle_rate"    gorm:"column:throttle_rate;not null;default:0"`
	CreatedAt       time.Time             `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	StartedAt       *time.Time            `db:"started_at"       gorm:"column:started_at"`
	CompletedAt     *time.Time            `db:"completed_at"     gorm:"column:completed_at"`
	Recipients      []*RecipientEntity    `gorm:"foreignKey:CampaignID"`
	SendLogs        []*SendLogEntryEntity `gorm:"foreignKey:CampaignID"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(c *model.Campaign) *CampaignEntity {
	if c == nil {
		return nil
	}
	return &CampaignEntity{
		ID:              c.ID,
		Name:            c.Name,
		Subject:         c.Subject,
		BodyHTML:        c.BodyHTML,
		BodyText:        c.BodyText,
		FromEmail:       c.FromEmail,
		FromName:        c.FromName,
		ReplyTo:         c.ReplyTo,
		Status:          string(c.Status),
		TotalRecipients: c.TotalRecipients,
		SentCount:       c.SentCount,
		DeliveredCount:  c.DeliveredCount,
		BouncedCount:    c.BouncedCount,
		FailedCount:     c.FailedCount,
		ThrottleRate:    c.ThrottleRate,
		CreatedAt:       c.CreatedAt,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	return &model.Campaign{
		ID:              e.ID,
		Name:            e.Name,
		Subject:         e.Subject,
		BodyHTML:        e.BodyHTML,
		BodyText:        e.BodyText,
		FromEmail:       e.FromEmail,
		FromName:        e.FromName,
		ReplyTo:         e.ReplyTo,
		Status:          model.CampaignStatus(e.Status),
		TotalRecipients: e.TotalRecipients,
		SentCount:       e.SentCount,
		DeliveredCount:  e.DeliveredCount,
		BouncedCount:    e.BouncedCount,
		FailedCount:     e.FailedCount,
		ThrottleRate:    e.ThrottleRate,
		CreatedAt:       e.CreatedAt,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
	}
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	if entities == nil {
		return nil
	}
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
