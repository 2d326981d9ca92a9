package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
)

// ProcessRefund refunds the completed payment behind sessionID and revokes
// the subscription it bought.
//
// Eligibility gates run before any money moves: the refund window counts
// whole days from the subscription start and includes the boundary day, and
// a user who has consumed their application or posting allowance is no
// longer eligible. After the gateway refund succeeds the local writes must
// land; if they do not, the error carries the data-integrity code so the
// failure is never retried into a second refund.
func (s *Service) ProcessRefund(ctx context.Context, userID uuid.UUID, sessionID, reason string) (*models.Transaction, error) {
	now := s.now()
	ctx = s.logg.WithUserID(ctx, userID.String())
	sessionID = strings.TrimSpace(sessionID)
	reason = strings.TrimSpace(reason)

	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	txn, err := s.txnRepo.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load transaction")
	}
	if txn == nil || txn.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment found for this session")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	if err := s.checkRefundable(user, txn, now); err != nil {
		return nil, err
	}

	sess, err := s.gateway.GetSession(ctx, txn.StripeSessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to fetch checkout session for refund")
	}
	if sess.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDataIntegrity, "completed payment has no payment intent at the gateway")
	}

	ref, err := s.gateway.CreateRefund(ctx, sess.PaymentIntentID, reason)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway refused the refund")
	}

	// Money has moved. Everything past this point must either commit or be
	// surfaced as a data-integrity failure for the reconcile sweep.
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		marked, markErr := s.txnRepo.WithTx(tx).MarkRefunded(ctx, txn.ID, ref.ID, reason, now)
		if markErr != nil {
			return markErr
		}
		if !marked {
			return fmt.Errorf("transaction %s no longer refundable", txn.ID)
		}
		return s.userRepo.WithTx(tx).DeactivateForRefund(ctx, userID)
	})
	if err != nil {
		s.logg.Error(ctx, "refund issued at gateway but local records not updated", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDataIntegrity, err, "refund issued but not recorded")
	}

	s.logg.Info(ctx, "refund processed and subscription revoked")
	s.notifyRefunded(ctx, userID, txn.PlanName)

	refunded, err := s.txnRepo.FindByStripeSessionID(ctx, txn.StripeSessionID)
	if err != nil || refunded == nil {
		// The commit landed; fall back to the in-memory copy.
		refID := ref.ID
		txn.StripeRefundID = &refID
		txn.RefundReason = &reason
		txn.RefundDate = &now
		txn.Status = enums.TransactionStatusRefunded
		return txn, nil
	}
	return refunded, nil
}

func (s *Service) checkRefundable(user *models.User, txn *models.Transaction, now time.Time) error {
	switch txn.Status {
	case enums.TransactionStatusRefunded:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment was already refunded")
	case enums.TransactionStatusCompleted:
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not refundable")
	}

	if user.AppliedJobCount >= s.cfg.MaxJobLimit || user.CreatedPostCount >= s.cfg.MaxPostLimit {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refund not available once the usage allowance is consumed")
	}

	if user.SubscriptionStartDate == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no subscription start recorded for this payment")
	}
	deadline := user.SubscriptionStartDate.Add(time.Duration(s.cfg.RefundWindowDays) * 24 * time.Hour)
	if now.After(deadline) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refund window has elapsed")
	}
	return nil
}
