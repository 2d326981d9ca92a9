package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

type sessionCleanupRepo interface {
	ClearExpiredPaymentSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionCleanupJob clears checkout session pointers whose expiry has
// passed, freeing those users to start a new checkout. Expiry is also
// enforced at read time, so this sweep only keeps the table tidy and the
// reconcile queue short.
type SessionCleanupJob struct {
	repo sessionCleanupRepo
	logg *logger.Logger
	now  func() time.Time
}

// NewSessionCleanupJob builds the cleanup job.
func NewSessionCleanupJob(repo sessionCleanupRepo, logg *logger.Logger, now func() time.Time) (*SessionCleanupJob, error) {
	if repo == nil {
		return nil, errors.New("user repo required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SessionCleanupJob{repo: repo, logg: logg, now: now}, nil
}

// Name identifies the job in logs and metrics.
func (j *SessionCleanupJob) Name() string { return "payment_session_cleanup" }

// Run clears every expired session pointer.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	cleared, err := j.repo.ClearExpiredPaymentSessions(ctx, j.now())
	if err != nil {
		return fmt.Errorf("clear expired payment sessions: %w", err)
	}
	if cleared > 0 {
		j.logg.Info(j.logg.WithField(ctx, "cleared", cleared), "expired payment sessions cleared")
	}
	return nil
}
