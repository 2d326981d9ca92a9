package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries the identity fields plus the contended subscription/session
// state mutated by the payment lifecycle.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string    `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	FirstName    string    `gorm:"column:first_name;not null"`
	LastName     string    `gorm:"column:last_name;not null"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`

	SubscriptionPlanID    *uuid.UUID `gorm:"column:subscription_plan_id;type:uuid"`
	IsSubscriptionActive  bool       `gorm:"column:is_subscription_active;not null;default:false"`
	SubscriptionStartDate *time.Time `gorm:"column:subscription_start_date"`
	SubscriptionEndDate   *time.Time `gorm:"column:subscription_end_date"`
	SubscriptionCancelled bool       `gorm:"column:subscription_cancelled;not null;default:false"`

	ActivePaymentSession          *string    `gorm:"column:active_payment_session"`
	ActivePaymentSessionExpiresAt *time.Time `gorm:"column:active_payment_session_expires_at"`

	AppliedJobCount  int `gorm:"column:applied_job_count;not null;default:0"`
	CreatedPostCount int `gorm:"column:created_post_count;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasLiveSession reports whether the stored checkout session pointer is still
// within its expiry window. Expiry is always re-checked server side; the
// cleanup sweep is best-effort and may lag.
func (u User) HasLiveSession(now time.Time) bool {
	return u.ActivePaymentSession != nil &&
		u.ActivePaymentSessionExpiresAt != nil &&
		u.ActivePaymentSessionExpiresAt.After(now)
}

// HasActiveSubscription re-validates the end date at call time to cover the
// gap between expiry and the next scheduler sweep.
func (u User) HasActiveSubscription(now time.Time) bool {
	return u.IsSubscriptionActive &&
		u.SubscriptionEndDate != nil &&
		u.SubscriptionEndDate.After(now)
}
