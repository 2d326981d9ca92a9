package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
)

// SessionStatus mirrors the lifecycle states a hosted checkout session
// reports at the gateway.
type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusExpired  SessionStatus = "expired"
)

// CheckoutSession is the gateway-neutral view of a hosted payment page.
type CheckoutSession struct {
	ID              string
	URL             string
	Status          SessionStatus
	Paid            bool
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	ExpiresAt       time.Time
	Metadata        map[string]string
}

// CreateSessionParams describes the checkout session to open.
type CreateSessionParams struct {
	UserID      uuid.UUID
	OrderID     string
	PlanName    enums.PlanName
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
}

// Refund is the gateway-neutral result of a refund request.
type Refund struct {
	ID string
}

// Gateway exposes the subset of payment provider operations the lifecycle
// services need.
type Gateway interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error)
}
