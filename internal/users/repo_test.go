package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  subscription_plan_id TEXT,
  is_subscription_active INTEGER NOT NULL DEFAULT 0,
  subscription_start_date DATETIME,
  subscription_end_date DATETIME,
  subscription_cancelled INTEGER NOT NULL DEFAULT 0,
  active_payment_session TEXT,
  active_payment_session_expires_at DATETIME,
  applied_job_count INTEGER NOT NULL DEFAULT 0,
  created_post_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, mutate func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		FirstName:    "Jamie",
		LastName:     "Rivera",
		IsActive:     true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestClaimPaymentSession(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	expiresAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	t.Run("claims when no session recorded", func(t *testing.T) {
		user := seedUser(t, db, nil)

		claimed, err := repo.ClaimPaymentSession(ctx, user.ID, nil, "cs_new", expiresAt)
		require.NoError(t, err)
		assert.True(t, claimed)

		stored, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ActivePaymentSession)
		assert.Equal(t, "cs_new", *stored.ActivePaymentSession)
	})

	t.Run("loses when a session appeared meanwhile", func(t *testing.T) {
		existing := "cs_existing"
		user := seedUser(t, db, func(u *models.User) {
			u.ActivePaymentSession = &existing
		})

		claimed, err := repo.ClaimPaymentSession(ctx, user.ID, nil, "cs_new", expiresAt)
		require.NoError(t, err)
		assert.False(t, claimed)

		stored, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "cs_existing", *stored.ActivePaymentSession)
	})

	t.Run("replaces the session it observed", func(t *testing.T) {
		existing := "cs_old"
		user := seedUser(t, db, func(u *models.User) {
			u.ActivePaymentSession = &existing
		})

		claimed, err := repo.ClaimPaymentSession(ctx, user.ID, &existing, "cs_new", expiresAt)
		require.NoError(t, err)
		assert.True(t, claimed)

		stored, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "cs_new", *stored.ActivePaymentSession)
	})
}

func TestReleasePaymentSession(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	session := "cs_live"
	expiry := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	user := seedUser(t, db, func(u *models.User) {
		u.ActivePaymentSession = &session
		u.ActivePaymentSessionExpiresAt = &expiry
	})

	released, err := repo.ReleasePaymentSession(ctx, user.ID, "cs_other")
	require.NoError(t, err)
	assert.False(t, released, "a stale release must not wipe a newer session")

	released, err = repo.ReleasePaymentSession(ctx, user.ID, "cs_live")
	require.NoError(t, err)
	assert.True(t, released)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ActivePaymentSession)
	assert.Nil(t, stored.ActivePaymentSessionExpiresAt)
}

func TestActivateSubscription(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	session := "cs_paid"
	user := seedUser(t, db, func(u *models.User) {
		u.ActivePaymentSession = &session
		u.SubscriptionCancelled = true
	})

	planID := uuid.New()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	require.NoError(t, repo.ActivateSubscription(ctx, user.ID, planID, start, end))

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSubscriptionActive)
	require.NotNil(t, stored.SubscriptionPlanID)
	assert.Equal(t, planID, *stored.SubscriptionPlanID)
	assert.Nil(t, stored.ActivePaymentSession, "activation clears the session pointer")
	assert.False(t, stored.SubscriptionCancelled, "a new paid subscription lifts the refund cooldown")
}

func TestDeactivateForRefund(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	planID := uuid.New()
	end := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	user := seedUser(t, db, func(u *models.User) {
		u.SubscriptionPlanID = &planID
		u.IsSubscriptionActive = true
		u.SubscriptionEndDate = &end
	})

	require.NoError(t, repo.DeactivateForRefund(ctx, user.ID))

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSubscriptionActive)
	assert.Nil(t, stored.SubscriptionPlanID)
	assert.Nil(t, stored.SubscriptionEndDate)
	assert.True(t, stored.SubscriptionCancelled)
}

func TestClearExpiredPaymentSessions(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	expiredSession := "cs_expired"
	expiredAt := now.Add(-time.Minute)
	expired := seedUser(t, db, func(u *models.User) {
		u.ActivePaymentSession = &expiredSession
		u.ActivePaymentSessionExpiresAt = &expiredAt
	})

	liveSession := "cs_live"
	liveUntil := now.Add(time.Minute)
	live := seedUser(t, db, func(u *models.User) {
		u.ActivePaymentSession = &liveSession
		u.ActivePaymentSessionExpiresAt = &liveUntil
	})

	cleared, err := repo.ClearExpiredPaymentSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	stored, err := repo.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ActivePaymentSession)

	stored, err = repo.FindByID(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ActivePaymentSession)
	assert.Equal(t, "cs_live", *stored.ActivePaymentSession)
}

func TestListExpiredSessionHolders(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	older := "cs_older"
	olderAt := now.Add(-2 * time.Hour)
	seedUser(t, db, func(u *models.User) {
		u.ActivePaymentSession = &older
		u.ActivePaymentSessionExpiresAt = &olderAt
	})

	newer := "cs_newer"
	newerAt := now.Add(-time.Hour)
	seedUser(t, db, func(u *models.User) {
		u.ActivePaymentSession = &newer
		u.ActivePaymentSessionExpiresAt = &newerAt
	})

	holders, err := repo.ListExpiredSessionHolders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "cs_older", *holders[0].ActivePaymentSession, "oldest expiry first")

	holders, err = repo.ListExpiredSessionHolders(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, holders, 1)
}

func TestResetLapsedSubscriptions(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	lapsedPlan := uuid.New()
	lapsedEnd := now.Add(-time.Hour)
	lapsed := seedUser(t, db, func(u *models.User) {
		u.SubscriptionPlanID = &lapsedPlan
		u.IsSubscriptionActive = true
		u.SubscriptionEndDate = &lapsedEnd
	})

	currentPlan := uuid.New()
	currentEnd := now.Add(time.Hour)
	current := seedUser(t, db, func(u *models.User) {
		u.SubscriptionPlanID = &currentPlan
		u.IsSubscriptionActive = true
		u.SubscriptionEndDate = &currentEnd
	})

	reset, err := repo.ResetLapsedSubscriptions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	stored, err := repo.FindByID(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSubscriptionActive)
	assert.Nil(t, stored.SubscriptionPlanID)

	stored, err = repo.FindByID(ctx, current.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSubscriptionActive)

	// A second run has nothing left to touch.
	reset, err = repo.ResetLapsedSubscriptions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reset)
}

func TestClearStaleCancelledFlags(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	stale := seedUser(t, db, func(u *models.User) {
		u.SubscriptionCancelled = true
	})

	resubscribedPlan := uuid.New()
	resubscribed := seedUser(t, db, func(u *models.User) {
		u.SubscriptionCancelled = true
		u.SubscriptionPlanID = &resubscribedPlan
	})

	cleared, err := repo.ClearStaleCancelledFlags(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	stored, err := repo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, stored.SubscriptionCancelled)

	stored, err = repo.FindByID(ctx, resubscribed.ID)
	require.NoError(t, err)
	assert.True(t, stored.SubscriptionCancelled, "a user holding a plan keeps the flag until it lapses")
}
