package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

type subscriptionResetRepo interface {
	ResetLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error)
	ClearStaleCancelledFlags(ctx context.Context) (int64, error)
}

// SubscriptionResetJob is the periodic sweep that clears lapsed
// subscription state and lifts the cancelled block from users who no
// longer hold a plan. It is the only writer that resets the cancelled
// flag, so a refunded user stays blocked until this sweep runs.
type SubscriptionResetJob struct {
	repo subscriptionResetRepo
	logg *logger.Logger
	now  func() time.Time
}

// NewSubscriptionResetJob builds the reset job.
func NewSubscriptionResetJob(repo subscriptionResetRepo, logg *logger.Logger, now func() time.Time) (*SubscriptionResetJob, error) {
	if repo == nil {
		return nil, errors.New("user repo required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SubscriptionResetJob{repo: repo, logg: logg, now: now}, nil
}

// Name identifies the job in logs and metrics.
func (j *SubscriptionResetJob) Name() string { return "subscription_reset" }

// Run resets lapsed subscriptions, then clears stale cancelled flags.
// Both steps are attempted even if the first fails.
func (j *SubscriptionResetJob) Run(ctx context.Context) error {
	var errs error

	reset, err := j.repo.ResetLapsedSubscriptions(ctx, j.now())
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reset lapsed subscriptions: %w", err))
	}

	uncancelled, err := j.repo.ClearStaleCancelledFlags(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("clear cancelled flags: %w", err))
	}

	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"reset":       reset,
		"uncancelled": uncancelled,
	}), "subscription reset sweep complete")
	return nil
}
