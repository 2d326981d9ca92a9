package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
)

// CheckoutResult is the hosted payment page handed back to the client.
type CheckoutResult struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

// CreateCheckoutSession opens (or re-hands-out) a hosted checkout session
// for the requested plan.
//
// The gating checks run in a fixed order: the cancelled block first, then
// subscription state, then the live-session check. The session pointer is only
// installed with a compare-and-update against the pointer value observed
// here, so two concurrent checkouts for one user cannot both win.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, planName enums.PlanName) (*CheckoutResult, error) {
	now := s.now()
	ctx = s.logg.WithUserID(ctx, userID.String())

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account is disabled")
	}
	if user.SubscriptionCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription was cancelled; checkout is blocked until the next reset cycle")
	}
	if user.HasActiveSubscription(now) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "an active subscription already exists")
	}

	// expected is the pointer value the claim below must still observe.
	expected := user.ActivePaymentSession

	if user.HasLiveSession(now) {
		result, handled, liveErr := s.resumeLiveSession(ctx, user.ID, *user.ActivePaymentSession, planName)
		if liveErr != nil {
			return nil, liveErr
		}
		if handled {
			return result, nil
		}
		// The gateway reported the session dead; the pointer was released
		// and the claim below expects an empty slot.
		expected = nil
	}

	plan, err := s.planRepo.FindByName(ctx, planName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load plan")
	}
	if plan == nil || !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not available")
	}

	expiresAt := now.Add(s.cfg.SessionTTL)
	sess, err := s.gateway.CreateSession(ctx, CreateSessionParams{
		UserID:      user.ID,
		OrderID:     uuid.NewString(),
		PlanName:    plan.Name,
		AmountCents: plan.PriceCents,
		Currency:    s.cfg.Currency,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to create checkout session")
	}

	claimed, err := s.userRepo.ClaimPaymentSession(ctx, user.ID, expected, sess.ID, expiresAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record checkout session")
	}
	if !claimed {
		// A concurrent request installed its own session between our read
		// and the claim. The losing session is abandoned; the gateway
		// expires it on its own.
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "another checkout is already in progress")
	}

	s.logg.Info(s.logg.WithSessionID(ctx, sess.ID), "checkout session created")
	return &CheckoutResult{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: expiresAt,
	}, nil
}

// resumeLiveSession inspects a still-unexpired stored session at the
// gateway. It returns (result, true, nil) when the caller should be handed
// the existing session, and (nil, false, nil) when the pointer was dead and
// has been released so checkout can continue.
func (s *Service) resumeLiveSession(ctx context.Context, userID uuid.UUID, sessionID string, planName enums.PlanName) (*CheckoutResult, bool, error) {
	ctx = s.logg.WithSessionID(ctx, sessionID)

	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to inspect existing checkout session")
	}

	switch {
	case sess.Paid:
		// Payment landed but confirmation never did. Reconcile now rather
		// than selling a second subscription.
		if _, confirmErr := s.ConfirmSession(ctx, sessionID); confirmErr != nil {
			return nil, false, confirmErr
		}
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "an active subscription already exists")
	case sess.Status == SessionStatusOpen:
		if sess.Metadata["plan_name"] != planName.String() {
			// The open session sells a different plan. Surface it so the
			// client can finish or abandon it instead of stacking sessions.
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "a checkout session for a different plan is in progress").
				WithDetails(map[string]string{"session_id": sess.ID})
		}
		s.logg.Info(ctx, "reusing open checkout session")
		return &CheckoutResult{
			SessionID: sess.ID,
			URL:       sess.URL,
			ExpiresAt: sess.ExpiresAt,
			Reused:    true,
		}, true, nil
	default:
		if _, err := s.userRepo.ReleasePaymentSession(ctx, userID, sessionID); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to release dead checkout session")
		}
		return nil, false, nil
	}
}
