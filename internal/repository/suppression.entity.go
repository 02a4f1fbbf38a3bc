package repository

import (
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

type SuppressionEntity struct {
	ID      int64     `db:"id"       gorm:"primaryKey;autoIncrement;column:id"`
	Email   string    `db:"email"    gorm:"column:email;not null;uniqueIndex"`
	Reason  string    `db:"reason"   gorm:"column:reason"`
	AddedAt time.Time `db:"added_at" gorm:"column:added_at;autoCreateTime"`
}

func (SuppressionEntity) TableName() string {
	return "suppressions"
}

func toSuppressionEntity(m *model.Suppression) *SuppressionEntity {
	if m == nil {
		return nil
	}
	return &SuppressionEntity{
		ID:      m.ID,
		Email:   model.NormalizeEmail(m.Email),
		Reason:  m.Reason,
		AddedAt: m.AddedAt,
	}
}

func toSuppressionModel(e *SuppressionEntity) *model.Suppression {
	if e == nil {
		return nil
	}
	return &model.Suppression{
		ID:      e.ID,
		Email:   e.Email,
		Reason:  e.Reason,
		AddedAt: e.AddedAt,
	}
}

func toSuppressionModels(entities []*SuppressionEntity) []*model.Suppression {
	if entities == nil {
		return nil
	}
	models := make([]*model.Suppression, len(entities))
	for i, e := range entities {
		models[i] = toSuppressionModel(e)
	}
	return models
}
