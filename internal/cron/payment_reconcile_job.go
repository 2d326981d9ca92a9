package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/careerlinkhq/careerlink-backend/internal/payments"
	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

type reconcileUserRepo interface {
	ListExpiredSessionHolders(ctx context.Context, now time.Time, limit int) ([]models.User, error)
}

type paymentReconciler interface {
	ConfirmSession(ctx context.Context, sessionID string) (*payments.ConfirmationResult, error)
	ReleaseSession(ctx context.Context, userID uuid.UUID, sessionID string) error
}

// PaymentReconcileJob closes the gap left by confirmations that never
// arrived: sessions whose expiry has passed while the user still carries
// the pointer. Paid sessions are recorded and activated through the same
// idempotent confirmation path the API uses; dead sessions are released.
type PaymentReconcileJob struct {
	repo     reconcileUserRepo
	payments paymentReconciler
	logg     *logger.Logger
	batch    int
	now      func() time.Time
}

// NewPaymentReconcileJob builds the reconcile job.
func NewPaymentReconcileJob(repo reconcileUserRepo, svc paymentReconciler, logg *logger.Logger, batch int, now func() time.Time) (*PaymentReconcileJob, error) {
	if repo == nil {
		return nil, errors.New("user repo required")
	}
	if svc == nil {
		return nil, errors.New("payments service required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if batch <= 0 {
		batch = 100
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PaymentReconcileJob{repo: repo, payments: svc, logg: logg, batch: batch, now: now}, nil
}

// Name identifies the job in logs and metrics.
func (j *PaymentReconcileJob) Name() string { return "payment_reconcile" }

// Run reconciles one batch of dangling sessions. A failure on one session
// never stops the rest of the batch.
func (j *PaymentReconcileJob) Run(ctx context.Context) error {
	holders, err := j.repo.ListExpiredSessionHolders(ctx, j.now(), j.batch)
	if err != nil {
		return fmt.Errorf("list dangling sessions: %w", err)
	}
	if len(holders) == 0 {
		return nil
	}

	var errs error
	var recovered, released int
	for _, user := range holders {
		if user.ActivePaymentSession == nil {
			continue
		}
		sessionID := *user.ActivePaymentSession

		result, err := j.payments.ConfirmSession(ctx, sessionID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", sessionID, err))
			continue
		}
		if result.Completed && !result.AlreadyProcessed {
			// A payment landed that nothing ever confirmed.
			recovered++
			continue
		}

		if err := j.payments.ReleaseSession(ctx, user.ID, sessionID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release session %s: %w", sessionID, err))
			continue
		}
		if !result.Completed {
			released++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"examined":  len(holders),
		"recovered": recovered,
		"released":  released,
	}), "payment reconcile sweep complete")
	return errs
}
