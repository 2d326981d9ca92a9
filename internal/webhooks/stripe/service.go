package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/careerlinkhq/careerlink-backend/internal/payments"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

type paymentConfirmer interface {
	ConfirmSession(ctx context.Context, sessionID string) (*payments.ConfirmationResult, error)
	ReleaseSession(ctx context.Context, userID uuid.UUID, sessionID string) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Payments paymentConfirmer
	Logger   *logger.Logger
}

// Service routes verified Stripe events into the payment lifecycle.
type Service struct {
	payments paymentConfirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent processes one verified webhook event. Events the lifecycle
// does not care about are acked without work. Confirmation itself is
// idempotent, so a redelivered completed event is harmless.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		sess, err := decodeSession(event)
		if err != nil {
			return err
		}
		_, err = s.payments.ConfirmSession(ctx, sess.ID)
		return err
	case stripe.EventTypeCheckoutSessionExpired:
		sess, err := decodeSession(event)
		if err != nil {
			return err
		}
		userID, parseErr := uuid.Parse(sess.ClientReferenceID)
		if parseErr != nil {
			// Session was not opened by this service; nothing to release.
			return nil
		}
		return s.payments.ReleaseSession(ctx, userID, sess.ID)
	default:
		return nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &sess, nil
}
