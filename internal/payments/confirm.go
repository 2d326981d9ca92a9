package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careerlinkhq/careerlink-backend/pkg/db"
	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
)

// sessionConstraint is the unique index that makes confirmation first-writer-wins.
const sessionConstraint = "uq_transactions_stripe_session_id"

// ConfirmationResult reports the reconciled outcome of a checkout session.
// Repeated confirmations of the same session return the same outcome.
type ConfirmationResult struct {
	Completed        bool                `json:"completed"`
	AlreadyProcessed bool                `json:"already_processed"`
	Transaction      *models.Transaction `json:"transaction,omitempty"`
}

// ConfirmSession reconciles a checkout session against the gateway and, if
// the payment landed, records the ledger entry and activates the
// subscription in one database transaction.
//
// The operation is idempotent: the ledger's unique session index decides the
// first writer, and every later caller is handed the stored outcome. It is
// safe to invoke from the success-redirect handler, the webhook and the
// reconcile sweep concurrently.
func (s *Service) ConfirmSession(ctx context.Context, sessionID string) (*ConfirmationResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	if existing, err := s.txnRepo.FindByStripeSessionID(ctx, sessionID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up transaction")
	} else if existing != nil {
		return &ConfirmationResult{Completed: true, AlreadyProcessed: true, Transaction: existing}, nil
	}

	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to fetch checkout session")
	}
	if !sess.Paid {
		s.logg.Info(ctx, "checkout session not paid; nothing to confirm")
		return &ConfirmationResult{Completed: false}, nil
	}

	userID, planName, orderID, err := confirmationMetadata(sess)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	plan, err := s.planRepo.FindByName(ctx, planName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load plan")
	}
	if plan == nil {
		// Money moved for a plan the catalog no longer knows.
		return nil, pkgerrors.New(pkgerrors.CodeDataIntegrity, "paid session references unknown plan")
	}

	now := s.now()
	currency := sess.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	txn := &models.Transaction{
		UserID:          userID,
		OrderID:         orderID,
		AmountCents:     sess.AmountCents,
		Currency:        currency,
		Status:          enums.TransactionStatusCompleted,
		PaymentMethod:   "card",
		StripeSessionID: sessionID,
		PlanName:        plan.Name,
	}

	end := now.Add(time.Duration(plan.ValidityDays) * 24 * time.Hour)
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.txnRepo.WithTx(tx).Create(ctx, txn); err != nil {
			return err
		}
		return s.userRepo.WithTx(tx).ActivateSubscription(ctx, userID, plan.ID, now, end)
	})
	if err != nil {
		if db.IsUniqueViolation(err, sessionConstraint) {
			// Another confirmer committed first; hand back its record.
			existing, readErr := s.txnRepo.FindByStripeSessionID(ctx, sessionID)
			if readErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, readErr, "failed to load winning transaction")
			}
			if existing == nil {
				return nil, pkgerrors.New(pkgerrors.CodeDataIntegrity, "duplicate confirmation detected but ledger entry missing")
			}
			return &ConfirmationResult{Completed: true, AlreadyProcessed: true, Transaction: existing}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record payment")
	}

	s.logg.Info(ctx, "payment confirmed and subscription activated")
	s.notifyActivated(ctx, userID, plan.Name)
	return &ConfirmationResult{Completed: true, Transaction: txn}, nil
}

func confirmationMetadata(sess *CheckoutSession) (uuid.UUID, enums.PlanName, string, error) {
	userID, err := uuid.Parse(sess.Metadata["user_id"])
	if err != nil {
		return uuid.Nil, "", "", pkgerrors.New(pkgerrors.CodeDataIntegrity, "paid session is missing its user reference")
	}
	planName, err := enums.ParsePlanName(sess.Metadata["plan_name"])
	if err != nil {
		return uuid.Nil, "", "", pkgerrors.New(pkgerrors.CodeDataIntegrity, "paid session is missing its plan reference")
	}
	orderID := sess.Metadata["order_id"]
	if orderID == "" {
		return uuid.Nil, "", "", pkgerrors.New(pkgerrors.CodeDataIntegrity, "paid session is missing its order reference")
	}
	return userID, planName, orderID, nil
}
