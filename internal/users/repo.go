package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
)

// Repository manages persistence for user subscription and session state.
//
// Every mutation of the contended fields (payment session pointer,
// subscription block) is a compare-and-update: the WHERE clause names the
// state the caller observed, and RowsAffected tells the caller whether it
// won the write. Blind saves of a previously loaded User are not offered.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// ClaimPaymentSession installs sessionID as the user's live checkout
	// session, but only if the stored pointer still matches expected
	// (nil means "no session recorded"). Returns false when another
	// writer got there first.
	ClaimPaymentSession(ctx context.Context, userID uuid.UUID, expected *string, sessionID string, expiresAt time.Time) (bool, error)

	// ReleasePaymentSession clears the pointer only while it still holds
	// sessionID, so a stale cleanup never wipes a newer session.
	ReleasePaymentSession(ctx context.Context, userID uuid.UUID, sessionID string) (bool, error)

	// ActivateSubscription grants the plan, lifts the refund cooldown and
	// clears the session pointer in one update. Runs inside the
	// confirmation transaction.
	ActivateSubscription(ctx context.Context, userID uuid.UUID, planID uuid.UUID, start, end time.Time) error

	// DeactivateForRefund revokes access and marks the user cancelled
	// until the periodic sweep clears the flag.
	DeactivateForRefund(ctx context.Context, userID uuid.UUID) error

	ClearExpiredPaymentSessions(ctx context.Context, now time.Time) (int64, error)
	ListExpiredSessionHolders(ctx context.Context, now time.Time, limit int) ([]models.User, error)
	ResetLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error)
	ClearStaleCancelledFlags(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) ClaimPaymentSession(ctx context.Context, userID uuid.UUID, expected *string, sessionID string, expiresAt time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID)
	if expected == nil {
		query = query.Where("active_payment_session IS NULL")
	} else {
		query = query.Where("active_payment_session = ?", *expected)
	}

	res := query.Updates(map[string]any{
		"active_payment_session":            sessionID,
		"active_payment_session_expires_at": expiresAt,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ReleasePaymentSession(ctx context.Context, userID uuid.UUID, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND active_payment_session = ?", userID, sessionID).
		Updates(map[string]any{
			"active_payment_session":            nil,
			"active_payment_session_expires_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ActivateSubscription(ctx context.Context, userID uuid.UUID, planID uuid.UUID, start, end time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"subscription_plan_id":              planID,
			"is_subscription_active":            true,
			"subscription_start_date":           start,
			"subscription_end_date":             end,
			"subscription_cancelled":            false,
			"active_payment_session":            nil,
			"active_payment_session_expires_at": nil,
		}).Error
}

func (r *repository) DeactivateForRefund(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"subscription_plan_id":    nil,
			"is_subscription_active":  false,
			"subscription_start_date": nil,
			"subscription_end_date":   nil,
			"subscription_cancelled":  true,
		}).Error
}

func (r *repository) ClearExpiredPaymentSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("active_payment_session IS NOT NULL").
		Where("active_payment_session_expires_at < ?", now).
		Updates(map[string]any{
			"active_payment_session":            nil,
			"active_payment_session_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListExpiredSessionHolders(ctx context.Context, now time.Time, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.User
	if err := r.db.WithContext(ctx).
		Where("active_payment_session IS NOT NULL").
		Where("active_payment_session_expires_at < ?", now).
		Order("active_payment_session_expires_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ResetLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	// Only rows with subscription residue that has actually lapsed are
	// touched, so a second run in a row is a no-op.
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("subscription_plan_id IS NOT NULL OR is_subscription_active OR subscription_start_date IS NOT NULL OR subscription_end_date IS NOT NULL").
		Where("subscription_end_date IS NULL OR subscription_end_date < ?", now).
		Updates(map[string]any{
			"subscription_plan_id":    nil,
			"is_subscription_active":  false,
			"subscription_start_date": nil,
			"subscription_end_date":   nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ClearStaleCancelledFlags(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("subscription_cancelled").
		Where("subscription_plan_id IS NULL").
		Update("subscription_cancelled", false)
	return res.RowsAffected, res.Error
}
