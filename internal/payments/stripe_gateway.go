package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"

	pkgstripe "github.com/careerlinkhq/careerlink-backend/pkg/stripe"
)

type stripeGateway struct{}

// NewStripeGateway wraps the initialized Stripe client behind the Gateway
// interface so the lifecycle services can be tested without the network.
func NewStripeGateway(api *pkgstripe.Client) Gateway {
	if api == nil {
		return nil
	}
	return &stripeGateway{}
}

func (g *stripeGateway) CreateSession(ctx context.Context, p CreateSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.UserID.String()),
		ExpiresAt:         stripe.Int64(p.ExpiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s subscription", p.PlanName)),
					},
				},
			},
		},
	}
	params.Context = ctx
	// Stripe dedupes retried creates on the order ID, so a network retry
	// cannot open two sessions for one order.
	params.SetIdempotencyKey(p.OrderID)
	params.AddMetadata("order_id", p.OrderID)
	params.AddMetadata("plan_name", p.PlanName.String())
	params.AddMetadata("user_id", p.UserID.String())

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return fromStripeSession(sess), nil
}

func (g *stripeGateway) GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, err
	}
	return fromStripeSession(sess), nil
}

func (g *stripeGateway) CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	ref, err := refund.New(params)
	if err != nil {
		return nil, err
	}
	return &Refund{ID: ref.ID}, nil
}

func fromStripeSession(sess *stripe.CheckoutSession) *CheckoutSession {
	if sess == nil {
		return nil
	}
	out := &CheckoutSession{
		ID:          sess.ID,
		URL:         sess.URL,
		Status:      SessionStatus(sess.Status),
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountCents: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Metadata:    sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return out
}
