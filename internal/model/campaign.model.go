package model

import (
	"errors"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

type Campaign struct {
	ID              int64          `json:"id"               db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Name            string         `json:"name"             db:"name"             gorm:"column:name;not null"`
	Subject         string         `json:"subject"          db:"subject"          gorm:"column:subject;not null"`
	BodyHTML        string         `json:"body_html"        db:"body_html"        gorm:"column:body_html"`
	BodyText        string         `json:"body_text"        db:"body_text"        gorm:"column:body_text"`
	FromEmail       string         `json:"from_email"       db:"from_email"       gorm:"column:from_email"` // overrides the account default when set
	FromName        string         `json:"from_name"        db:"from_name"        gorm:"column:from_name"`
	ReplyTo         string         `json:"reply_to"         db:"reply_to"         gorm:"column:reply_to"`
	Status          CampaignStatus `json:"status"           db:"status"           gorm:"column:status;not null;default:draft;index"`
	TotalRecipients int            `json:"total_recipients" db:"total_recipients" gorm:"column:total_recipients;not null;default:0"`
	SentCount       int            `json:"sent_count"       db:"sent_count"       gorm:"column:sent_count;not null;default:0"`
	DeliveredCount  int            `json:"delivered_count"  db:"delivered_count"  gorm:"column:delivered_count;not null;default:0"`
	BouncedCount    int            `json:"bounced_count"    db:"bounced_count"    gorm:"column:bounced_count;not null;default:0"`
	FailedCount     int            `json:"failed_count"     db:"failed_count"     gorm:"column:failed_count;not null;default:0"`
	ThrottleRate    float64        `json:"throttle_rate"    db:"throttle_rate"    gorm:"column:throttle_rate;not null;default:0"` // seconds between sends
	CreatedAt       time.Time      `json:"created_at"       db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	StartedAt       *time.Time     `json:"started_at"       db:"started_at"       gorm:"column:started_at"`
	CompletedAt     *time.Time     `json:"completed_at"     db:"completed_at"     gorm:"column:completed_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignCreateRequest is the input for creating a campaign.
type CampaignCreateRequest struct {
	Name         string  `json:"name"`
	Subject      string  `json:"subject"`
	BodyHTML     string  `json:"body_html"`
	BodyText     string  `json:"body_text"`
	FromEmail    string  `json:"from_email"`
	FromName     string  `json:"from_name"`
	ReplyTo      string  `json:"reply_to"`
	ThrottleRate float64 `json:"throttle_rate"`
}

func (p CampaignCreateRequest) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Subject == "" {
		return errors.New("subject is required")
	}
	if p.BodyHTML == "" && p.BodyText == "" {
		return errors.New("body_html or body_text is required")
	}
	if p.ThrottleRate < 0 {
		return errors.New("throttle_rate must not be negative")
	}
	return nil
}

// CampaignFilter controls List queries.
type CampaignFilter struct {
	Statuses []CampaignStatus // IN (...)
	From     *time.Time
	To       *time.Time
	Limit    int  // default 50
	Offset   int  // for pagination
	Desc     bool // order by created_at
}
