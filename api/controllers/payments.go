package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/api/middleware"
	"github.com/careerlinkhq/careerlink-backend/api/responses"
	"github.com/careerlinkhq/careerlink-backend/api/validators"
	"github.com/careerlinkhq/careerlink-backend/internal/payments"
	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

// PaymentService is the slice of the payment lifecycle the controllers use.
type PaymentService interface {
	CreateCheckoutSession(ctx context.Context, userID uuid.UUID, planName enums.PlanName) (*payments.CheckoutResult, error)
	ConfirmSession(ctx context.Context, sessionID string) (*payments.ConfirmationResult, error)
	ProcessRefund(ctx context.Context, userID uuid.UUID, sessionID, reason string) (*models.Transaction, error)
	LatestTransaction(ctx context.Context, userID uuid.UUID) (*models.Transaction, error)
	TransactionBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Transaction, error)
}

type checkoutSessionRequest struct {
	PlanName string `json:"plan_name" validate:"required,oneof=BASIC PRO PREMIUM"`
}

type confirmPaymentRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type refundRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,max=500"`
}

type transactionResponse struct {
	ID              uuid.UUID  `json:"id"`
	OrderID         string     `json:"order_id"`
	AmountCents     int64      `json:"amount_cents"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	PaymentMethod   string     `json:"payment_method"`
	StripeSessionID string     `json:"stripe_session_id"`
	PlanName        string     `json:"plan_name"`
	RefundReason    *string    `json:"refund_reason,omitempty"`
	RefundDate      *time.Time `json:"refund_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type confirmPaymentResponse struct {
	Completed        bool                 `json:"completed"`
	AlreadyProcessed bool                 `json:"already_processed"`
	Transaction      *transactionResponse `json:"transaction,omitempty"`
}

// CreateCheckoutSession opens a hosted checkout session for the caller.
func CreateCheckoutSession(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckoutSession(r.Context(), userID, enums.PlanName(payload.PlanName))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// ConfirmPayment reconciles a checkout session after the success redirect.
func ConfirmPayment(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		if _, err := callerID(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmSession(r.Context(), payload.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newConfirmResponse(result))
	}
}

// RequestRefund refunds the caller's payment for one checkout session.
func RequestRefund(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.ProcessRefund(r.Context(), userID, payload.SessionID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// LatestTransaction returns the caller's most recent ledger entry.
func LatestTransaction(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.LatestTransaction(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// TransactionDetails returns the caller's ledger entry for one session.
func TransactionDetails(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		txn, err := svc.TransactionBySession(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func newTransactionResponse(txn *models.Transaction) *transactionResponse {
	if txn == nil {
		return nil
	}
	return &transactionResponse{
		ID:              txn.ID,
		OrderID:         txn.OrderID,
		AmountCents:     txn.AmountCents,
		Amount:          txn.AmountDollars().StringFixed(2),
		Currency:        txn.Currency,
		Status:          txn.Status.String(),
		PaymentMethod:   txn.PaymentMethod,
		StripeSessionID: txn.StripeSessionID,
		PlanName:        txn.PlanName.String(),
		RefundReason:    txn.RefundReason,
		RefundDate:      txn.RefundDate,
		CreatedAt:       txn.CreatedAt,
	}
}

func newConfirmResponse(result *payments.ConfirmationResult) confirmPaymentResponse {
	out := confirmPaymentResponse{
		Completed:        result.Completed,
		AlreadyProcessed: result.AlreadyProcessed,
	}
	if result.Transaction != nil {
		out.Transaction = newTransactionResponse(result.Transaction)
	}
	return out
}
