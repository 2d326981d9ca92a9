package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
)

// LatestTransaction returns the caller's most recent ledger entry.
func (s *Service) LatestTransaction(ctx context.Context, userID uuid.UUID) (*models.Transaction, error) {
	txn, err := s.txnRepo.FindLatestByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load latest transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no transactions found")
	}
	return txn, nil
}

// TransactionBySession returns the ledger entry for a checkout session.
// Callers only ever see their own entries; a hit owned by someone else is
// reported as missing.
func (s *Service) TransactionBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Transaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	txn, err := s.txnRepo.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load transaction")
	}
	if txn == nil || txn.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

// ListTransactions returns the caller's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	out, err := s.txnRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list transactions")
	}
	return out, nil
}
