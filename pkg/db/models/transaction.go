package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
)

// Transaction is the ledger record for one completed payment. The unique
// stripe_session_id is the idempotency guard against duplicate confirmation.
type Transaction struct {
	ID              uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID         string                  `gorm:"column:order_id;not null"`
	AmountCents     int64                   `gorm:"column:amount_cents;not null"`
	Currency        string                  `gorm:"column:currency;not null;default:'usd'"`
	Status          enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod   string                  `gorm:"column:payment_method;not null;default:'card'"`
	StripeSessionID string                  `gorm:"column:stripe_session_id;not null;unique"`
	StripeRefundID  *string                 `gorm:"column:stripe_refund_id"`
	PlanName        enums.PlanName          `gorm:"column:plan_name;not null"`
	RefundReason    *string                 `gorm:"column:refund_reason"`
	RefundDate      *time.Time              `gorm:"column:refund_date"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// AmountDollars converts the stored cent amount for display.
func (t Transaction) AmountDollars() decimal.Decimal {
	return decimal.NewFromInt(t.AmountCents).Div(decimal.NewFromInt(100))
}
