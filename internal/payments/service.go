package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careerlinkhq/careerlink-backend/internal/plans"
	"github.com/careerlinkhq/careerlink-backend/internal/transactions"
	"github.com/careerlinkhq/careerlink-backend/internal/users"
	"github.com/careerlinkhq/careerlink-backend/pkg/config"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier publishes lifecycle events. Delivery is fire and forget; a lost
// notification never blocks or rolls back a payment.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, userID uuid.UUID, plan enums.PlanName)
	SubscriptionRefunded(ctx context.Context, userID uuid.UUID, plan enums.PlanName)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	UserRepo          users.Repository
	PlanRepo          plans.Repository
	TransactionRepo   transactions.Repository
	Gateway           Gateway
	Notifier          Notifier
	TransactionRunner txRunner
	Logger            *logger.Logger
	Config            config.PaymentsConfig

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service orchestrates the checkout, confirmation and refund lifecycle.
type Service struct {
	userRepo users.Repository
	planRepo plans.Repository
	txnRepo  transactions.Repository
	gateway  Gateway
	notifier Notifier
	txRunner txRunner
	logg     *logger.Logger
	cfg      config.PaymentsConfig
	now      func() time.Time
}

// NewService validates dependencies and returns a payment lifecycle service.
func NewService(params ServiceParams) (*Service, error) {
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	}
	if params.PlanRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan repo required")
	}
	if params.TransactionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		userRepo: params.UserRepo,
		planRepo: params.PlanRepo,
		txnRepo:  params.TransactionRepo,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		cfg:      params.Config,
		now:      now,
	}, nil
}

// ReleaseSession drops the user's session pointer if it still references
// sessionID. Used when the gateway reports the session dead.
func (s *Service) ReleaseSession(ctx context.Context, userID uuid.UUID, sessionID string) error {
	_, err := s.userRepo.ReleasePaymentSession(ctx, userID, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to release checkout session")
	}
	return nil
}

func (s *Service) notifyActivated(ctx context.Context, userID uuid.UUID, plan enums.PlanName) {
	if s.notifier == nil {
		return
	}
	s.notifier.SubscriptionActivated(ctx, userID, plan)
}

func (s *Service) notifyRefunded(ctx context.Context, userID uuid.UUID, plan enums.PlanName) {
	if s.notifier == nil {
		return
	}
	s.notifier.SubscriptionRefunded(ctx, userID, plan)
}
