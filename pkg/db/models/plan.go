package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
)

// Plan is the catalog entry for a purchasable subscription tier.
type Plan struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         enums.PlanName `gorm:"column:name;not null;unique"`
	PriceCents   int64          `gorm:"column:price_cents;not null"`
	ValidityDays int            `gorm:"column:validity_days;not null"`
	IsActive     bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// PriceDollars converts the stored cent amount for display.
func (p Plan) PriceDollars() decimal.Decimal {
	return decimal.NewFromInt(p.PriceCents).Div(decimal.NewFromInt(100))
}
