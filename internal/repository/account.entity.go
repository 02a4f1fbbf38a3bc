package repository

import (
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

type ProviderAccountEntity struct {
	ID            int64      `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	Name          string     `db:"name"            gorm:"column:name;not null"`
	Kind          string     `db:"kind"            gorm:"column:kind;not null"`
	ProviderType  string     `db:"provider_type"   gorm:"column:provider_type;not null"`
	Host          string     `db:"host"            gorm:"column:host"`
	Port          int        `db:"port"            gorm:"column:port"`
	Username      string     `db:"username"        gorm:"column:username"`
	Password      string     `db:"password"        gorm:"column:password"`
	UseTLS        bool       `db:"use_tls"         gorm:"column:use_tls"`
	UseSSL        bool       `db:"use_ssl"         gorm:"column:use_ssl"`
	APIKey        string     `db:"api_key"         gorm:"column:api_key"`
	APISecret     string     `db:"api_secret"      gorm:"column:api_secret"`
	Domain        string     `db:"domain"          gorm:"column:domain"`
	Region        string     `db:"region"          gorm:"column:region"`
	FromEmail     string     `db:"from_email"      gorm:"column:from_email;not null"`
	FromName      string     `db:"from_name"       gorm:"column:from_name"`
	ReplyTo       string     `db:"reply_to"        gorm:"column:reply_to"`
	Enabled       bool       `db:"enabled"         gorm:"column:enabled;not null;default:true"`
	MaxPerHour    int        `db:"max_per_hour"    gorm:"column:max_per_hour;not null;default:0"`
	MaxPerDay     int        `db:"max_per_day"     gorm:"column:max_per_day;not null;default:0"`
	SentThisHour  int        `db:"sent_this_hour"  gorm:"column:sent_this_hour;not null;default:0"`
	SentToday     int        `db:"sent_today"      gorm:"column:sent_today;not null;default:0"`
	LastResetHour *time.Time `db:"last_reset_hour" gorm:"column:last_reset_hour"`
	LastResetDay  *time.Time `db:"last_reset_day"  gorm:"column:last_reset_day"`
	CreatedAt     time.Time  `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (ProviderAccountEntity) TableName() string {
	return "provider_accounts"
}

func toAccountEntity(m *model.ProviderAccount) *ProviderAccountEntity {
	if m == nil {
		return nil
	}
	return &ProviderAccountEntity{
		ID:            m.ID,
		Name:          m.Name,
		Kind:          string(m.Kind),
		ProviderType:  string(m.ProviderType),
		Host:          m.Host,
		Port:          m.Port,
		Username:      m.Username,
		Password:      m.Password,
		UseTLS:        m.UseTLS,
		UseSSL:        m.UseSSL,
		APIKey:        m.APIKey,
		APISecret:     m.APISecret,
		Domain:        m.Domain,
		Region:        m.Region,
		FromEmail:     m.FromEmail,
		FromName:      m.FromName,
		ReplyTo:       m.ReplyTo,
		Enabled:       m.Enabled,
		MaxPerHour:    m.MaxPerHour,
		MaxPerDay:     m.MaxPerDay,
		SentThisHour:  m.SentThisHour,
		SentToday:     m.SentToday,
		LastResetHour: m.LastResetHour,
		LastResetDay:  m.LastResetDay,
		CreatedAt:     m.CreatedAt,
	}
}

func toAccountModel(e *ProviderAccountEntity) *model.ProviderAccount {
	if e == nil {
		return nil
	}
	return &model.ProviderAccount{
		ID:            e.ID,
		Name:          e.Name,
		Kind:          model.AccountKind(e.Kind),
		ProviderType:  model.ProviderType(e.ProviderType),
		Host:          e.Host,
		Port:          e.Port,
		Username:      e.Username,
		Password:      e.Password,
		UseTLS:        e.UseTLS,
		UseSSL:        e.UseSSL,
		APIKey:        e.APIKey,
		APISecret:     e.APISecret,
		Domain:        e.Domain,
		Region:        e.Region,
		FromEmail:     e.FromEmail,
		FromName:      e.FromName,
		ReplyTo:       e.ReplyTo,
		Enabled:       e.Enabled,
		MaxPerHour:    e.MaxPerHour,
		MaxPerDay:     e.MaxPerDay,
		SentThisHour:  e.SentThisHour,
		SentToday:     e.SentToday,
		LastResetHour: e.LastResetHour,
		LastResetDay:  e.LastResetDay,
		CreatedAt:     e.CreatedAt,
	}
}

func toAccountModels(entities []*ProviderAccountEntity) []*model.ProviderAccount {
	if entities == nil {
		return nil
	}
	models := make([]*model.ProviderAccount, len(entities))
	for i, e := range entities {
		models[i] = toAccountModel(e)
	}
	return models
}
