package model

import (
	"errors"
	"strings"
	"time"
)

// Suppression is an address that must never receive campaign mail.
// Emails are stored lowercase; membership checks are case-insensitive.
type Suppression struct {
	ID      int64     `json:"id"       db:"id"       gorm:"primaryKey;autoIncrement;column:id"`
	Email   string    `json:"email"    db:"email"    gorm:"column:email;not null;uniqueIndex"`
	Reason  string    `json:"reason"   db:"reason"   gorm:"column:reason"`
	AddedAt time.Time `json:"added_at" db:"added_at" gorm:"column:added_at;autoCreateTime"`
}

func (Suppression) TableName() string { return "suppressions" }

// SuppressionCreateRequest is the input for suppressing an address.
type SuppressionCreateRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

func (p SuppressionCreateRequest) Validate() error {
	if p.Email == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(p.Email, "@") {
		return errors.New("email is malformed")
	}
	return nil
}

// NormalizeEmail lowercases and trims an address for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
