package model

import (
	"errors"
	"strings"
	"time"
)

// RecipientStatus is the per-recipient delivery state.
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusOpened    RecipientStatus = "opened"
	RecipientStatusBounced   RecipientStatus = "bounced"
	RecipientStatusFailed    RecipientStatus = "failed"
)

type Recipient struct {
	ID           int64           `json:"id"            db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID   int64           `json:"campaign_id"   db:"campaign_id"   gorm:"column:campaign_id;not null;index"`
	Campaign     *Campaign       `json:"-"                                 gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
	Email        string          `json:"email"         db:"email"         gorm:"column:email;not null;index"`
	FirstName    string          `json:"first_name"    db:"first_name"    gorm:"column:first_name"`
	LastName     string          `json:"last_name"     db:"last_name"     gorm:"column:last_name"`
	CustomFields string          `json:"custom_fields" db:"custom_fields" gorm:"column:custom_fields"` // JSON object, open key set
	Status       RecipientStatus `json:"status"        db:"status"        gorm:"column:status;not null;default:pending;index"`
	MessageID    string          `json:"message_id"    db:"message_id"    gorm:"column:message_id"`
	ProviderType string          `json:"provider_type" db:"provider_type" gorm:"column:provider_type"`
	ErrorMessage string          `json:"error_message" db:"error_message" gorm:"column:error_message"`
	RetryCount   int             `json:"retry_count"   db:"retry_count"   gorm:"column:retry_count;not null;default:0"`
	SentAt       *time.Time      `json:"sent_at"       db:"sent_at"       gorm:"column:sent_at"`
}

func (Recipient) TableName() string { return "recipients" }

// RecipientCreateRequest is the input for adding a recipient to a campaign.
type RecipientCreateRequest struct {
	CampaignID   int64
	Email        string
	FirstName    string
	LastName     string
	CustomFields string
}

func (p RecipientCreateRequest) Validate() error {
	if p.CampaignID == 0 {
		return errors.New("campaign_id is required")
	}
	if p.Email == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(p.Email, "@") {
		return errors.New("email is malformed")
	}
	return nil
}

// RecipientFilter controls List queries.
type RecipientFilter struct {
	CampaignID *int64            // equals
	Statuses   []RecipientStatus // IN (...)
	Email      *string           // equals (lowercased)
	Limit      int               // default 50
	Offset     int               // for pagination
}
