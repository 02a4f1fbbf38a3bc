package repository

import (
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

type RecipientEntity struct {
	ID           int64      `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID   int64      `db:"campaign_id"   gorm:"column:campaign_id;not null;index"`
	Email        string     `db:"email"         gorm:"column:email;not null;index"`
	FirstName    string     `db:"first_name"    gorm:"column:first_name"`
	LastName     string     `db:"last_name"     gorm:"column:last_name"`
	CustomFields string     `db:"custom_fields" gorm:"column:custom_fields"`
	Status       string     `db:"status"        gorm:"column:status;not null;default:pending;index"`
	MessageID    string     `db:"message_id"    gorm:"column:message_id"`
	ProviderType string     `db:"provider_type" gorm:"column:provider_type"`
	ErrorMessage string     `db:"error_message" gorm:"column:error_message"`
	RetryCount   int        `db:"retry_count"   gorm:"column:retry_count;not null;default:0"`
	SentAt       *time.Time `db:"sent_at"       gorm:"column:sent_at"`
}

func (RecipientEntity) TableName() string {
	return "recipients"
}

func toRecipientEntity(m *model.Recipient) *RecipientEntity {
	if m == nil {
		return nil
	}
	return &RecipientEntity{
		ID:           m.ID,
		CampaignID:   m.CampaignID,
		Email:        m.Email,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		CustomFields: m.CustomFields,
		Status:       string(m.Status),
		MessageID:    m.MessageID,
		ProviderType: m.ProviderType,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		SentAt:       m.SentAt,
	}
}

func toRecipientModel(e *RecipientEntity) *model.Recipient {
	if e == nil {
		return nil
	}
	return &model.Recipient{
		ID:           e.ID,
		CampaignID:   e.CampaignID,
		Email:        e.Email,
		FirstName:    e.FirstName,
		LastName:     e.LastName,
		CustomFields: e.CustomFields,
		Status:       model.RecipientStatus(e.Status),
		MessageID:    e.MessageID,
		ProviderType: e.ProviderType,
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		SentAt:       e.SentAt,
	}
}

func toRecipientModels(entities []*RecipientEntity) []*model.Recipient {
	if entities == nil {
		return nil
	}
	models := make([]*model.Recipient, len(entities))
	for i, e := range entities {
		models[i] = toRecipientModel(e)
	}
	return models
}
