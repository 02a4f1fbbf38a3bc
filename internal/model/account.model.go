package model

import (
	"errors"
	"time"
)

// AccountKind distinguishes SMTP relays from HTTP API providers.
type AccountKind string

const (
	AccountKindSMTP AccountKind = "smtp"
	AccountKindAPI  AccountKind = "api"
)

// ProviderType names the concrete delivery backend of an account.
type ProviderType string

const (
	ProviderTypeSMTP      ProviderType = "smtp"
	ProviderTypeSendgrid  ProviderType = "sendgrid"
	ProviderTypeMailgun   ProviderType = "mailgun"
	ProviderTypePostmark  ProviderType = "postmark"
	ProviderTypeMailjet   ProviderType = "mailjet"
	ProviderTypeAmazonSES ProviderType = "amazon_ses"
)

type ProviderAccount struct {
	ID           int64        `json:"id"            db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	Name         string       `json:"name"          db:"name"          gorm:"column:name;not null"`
	Kind         AccountKind  `json:"kind"          db:"kind"          gorm:"column:kind;not null"`
	ProviderType ProviderType `json:"provider_type" db:"provider_type" gorm:"column:provider_type;not null"`

	// SMTP settings
	Host     string `json:"host"     db:"host"     gorm:"column:host"`
	Port     int    `json:"port"     db:"port"     gorm:"column:port"`
	Username string `json:"username" db:"username" gorm:"column:username"`
	Password string `json:"-"        db:"password" gorm:"column:password"`
	UseTLS   bool   `json:"use_tls"  db:"use_tls"  gorm:"column:use_tls"` // STARTTLS
	UseSSL   bool   `json:"use_ssl"  db:"use_ssl"  gorm:"column:use_ssl"` // implicit TLS

	// API settings
	APIKey    string `json:"-"      db:"api_key"    gorm:"column:api_key"`
	APISecret string `json:"-"      db:"api_secret" gorm:"column:api_secret"`
	Domain    string `json:"domain" db:"domain"     gorm:"column:domain"` // mailgun sending domain
	Region    string `json:"region" db:"region"     gorm:"column:region"` // amazon_ses region

	FromEmail string `json:"from_email" db:"from_email" gorm:"column:from_email;not null"`
	FromName  string `json:"from_name"  db:"from_name"  gorm:"column:from_name"`
	ReplyTo   string `json:"reply_to"   db:"reply_to"   gorm:"column:reply_to"`
	Enabled   bool   `json:"enabled"    db:"enabled"    gorm:"column:enabled;not null;default:true"`

	// Quota state. Caps of zero mean unlimited.
	MaxPerHour    int        `json:"max_per_hour"    db:"max_per_hour"    gorm:"column:max_per_hour;not null;default:0"`
	MaxPerDay     int        `json:"max_per_day"     db:"max_per_day"     gorm:"column:max_per_day;not null;default:0"`
	SentThisHour  int        `json:"sent_this_hour"  db:"sent_this_hour"  gorm:"column:sent_this_hour;not null;default:0"`
	SentToday     int        `json:"sent_today"      db:"sent_today"      gorm:"column:sent_today;not null;default:0"`
	LastResetHour *time.Time `json:"last_reset_hour" db:"last_reset_hour" gorm:"column:last_reset_hour"`
	LastResetDay  *time.Time `json:"last_reset_day"  db:"last_reset_day"  gorm:"column:last_reset_day"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ProviderAccount) TableName() string { return "provider_accounts" }

// AccountCreateRequest is the input for registering a provider account.
type AccountCreateRequest struct {
	Name         string       `json:"name"`
	Kind         AccountKind  `json:"kind"`
	ProviderType ProviderType `json:"provider_type"`
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	Username     string       `json:"username"`
	Password     string       `json:"password"`
	UseTLS       bool         `json:"use_tls"`
	UseSSL       bool         `json:"use_ssl"`
	APIKey       string       `json:"api_key"`
	APISecret    string       `json:"api_secret"`
	Domain       string       `json:"domain"`
	Region       string       `json:"region"`
	FromEmail    string       `json:"from_email"`
	FromName     string       `json:"from_name"`
	ReplyTo      string       `json:"reply_to"`
	MaxPerHour   int          `json:"max_per_hour"`
	MaxPerDay    int          `json:"max_per_day"`
}

func (p AccountCreateRequest) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.FromEmail == "" {
		return errors.New("from_email is required")
	}
	switch p.Kind {
	case AccountKindSMTP:
		if p.Host == "" && p.ProviderType != ProviderTypeAmazonSES {
			return errors.New("host is required for smtp accounts")
		}
	case AccountKindAPI:
		if p.APIKey == "" {
			return errors.New("api_key is required for api accounts")
		}
	default:
		return errors.New("kind must be smtp or api")
	}
	switch p.ProviderType {
	case ProviderTypeSMTP, ProviderTypeSendgrid, ProviderTypeMailgun,
		ProviderTypePostmark, ProviderTypeMailjet, ProviderTypeAmazonSES:
	default:
		return errors.New("unknown provider_type")
	}
	if p.MaxPerHour < 0 || p.MaxPerDay < 0 {
		return errors.New("quota caps must not be negative")
	}
	return nil
}
