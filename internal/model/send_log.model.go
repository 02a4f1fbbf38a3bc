package model

import "time"

// SendLogEntry is an append-only record of one terminal attempt outcome.
type SendLogEntry struct {
	ID                int64      `json:"id"                  db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID        int64      `json:"campaign_id"         db:"campaign_id"         gorm:"column:campaign_id;not null;index"`
	Campaign          *Campaign  `json:"-"                                             gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
	RecipientID       int64      `json:"recipient_id"        db:"recipient_id"        gorm:"column:recipient_id;not null;index"`
	Recipient         *Recipient `json:"-"                                             gorm:"foreignKey:RecipientID;references:ID;constraint:OnDelete:CASCADE"`
	ProviderType      string     `json:"provider_type"       db:"provider_type"       gorm:"column:provider_type"`
	ProviderAccountID int64      `json:"provider_account_id" db:"provider_account_id" gorm:"column:provider_account_id;index"`
	Status            string     `json:"status"              db:"status"              gorm:"column:status;not null;index"`
	MessageID         string     `json:"message_id"          db:"message_id"          gorm:"column:message_id"`
	Response          string     `json:"response"            db:"response"            gorm:"column:response"`
	Timestamp         time.Time  `json:"timestamp"           db:"timestamp"           gorm:"column:timestamp;autoCreateTime"`
}

func (SendLogEntry) TableName() string { return "send_logs" }

// SendLogFilter controls event page queries.
type SendLogFilter struct {
	CampaignID *int64
	Statuses   []string
	From       *time.Time
	To         *time.Time
	Limit      int  // default 50
	Offset     int  // for pagination
	Desc       bool // order by timestamp
}
