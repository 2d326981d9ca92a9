package payments

import (
	"context"
	"testing"
	"time"

	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
)

func openPaidSession(t *testing.T, fixture *serviceFixture, user *models.User) string {
	t.Helper()
	result, err := fixture.svc.CreateCheckoutSession(context.Background(), user.ID, enums.PlanNamePro)
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	fixture.gateway.markPaid(result.SessionID, "pi_test_1")
	return result.SessionID
}

func TestConfirmSession_recordsPaymentAndActivates(t *testing.T) {
	user := activeUser()
	fixture := newServiceFixture(t, []*models.User{user}, []*models.Plan{proPlan()})
	sessionID := openPaidSession(t, fixture, user)

	result, err := fixture.svc.ConfirmSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	if !result.Completed || result.AlreadyProcessed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Transaction == nil || result.Transaction.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed transaction, got %+v", result.Transaction)
	}
	if result.Transaction.AmountCents != 4999 {
		t.Fatalf("unexpected amount: %d", result.Transaction.AmountCents)
	}

	stored, _ := fixture.userRepo.FindByID(context.Background(), user.ID)
	if !stored.IsSubscriptionActive {
		t.Fatal("subscription must be active after confirmation")
	}
	if stored.ActivePaymentSession != nil {
		t.Fatal("session pointer must be cleared by activation")
	}
	if stored.SubscriptionEndDate == nil {
		t.Fatal("subscription end date must be set")
	}
	if want := testNow.Add(30 * 24 * time.Hour); !stored.SubscriptionEndDate.Equal(want) {
		t.Fatalf("unexpected end date: got %s want %s", stored.SubscriptionEndDate, want)
	}
	if len(fixture.notifier.activated) != 1 {
		t.Fatalf("expected 1 activation notification, got %d", len(fixture.notifier.activated))
	}
}

func TestConfirmSession_isIdempotent(t *testing.T) {
	user := activeUser()
	fixture := newServiceFixture(t, []*models.User{user}, []*models.Plan{proPlan()})
	sessionID := openPaidSession(t, fixture, user)

	first, err := fixture.svc.ConfirmSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	second, err := fixture.svc.ConfirmSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if !second.Completed || !second.AlreadyProcessed {
		t.Fatalf("expected already-processed result, got %+v", second)
	}
	if second.Transaction.ID != first.Transaction.ID {
		t.Fatal("repeated confirmation must return the original transaction")
	}
	if len(fixture.notifier.activated) != 1 {
		t.Fatalf("expected a single activation notification, got %d", len(fixture.notifier.activated))
	}
}

func TestConfirmSession_unpaidSessionWritesNothing(t *testing.T) {
	user := activeUser()
	fixture := newServiceFixture(t, []*models.User{user}, []*models.Plan{proPlan()})

	result, err := fixture.svc.CreateCheckoutSession(context.Background(), user.ID, enums.PlanNamePro)
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	confirmation, err := fixture.svc.ConfirmSession(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	if confirmation.Completed {
		t.Fatal("unpaid session must not be completed")
	}

	txn, _ := fixture.txnRepo.FindByStripeSessionID(context.Background(), result.SessionID)
	if txn != nil {
		t.Fatal("no ledger entry may exist for an unpaid session")
	}
	stored, _ := fixture.userRepo.FindByID(context.Background(), user.ID)
	if stored.IsSubscriptionActive {
		t.Fatal("subscription must not activate for an unpaid session")
	}
}

func TestConfirmSession_duplicateInsertReturnsWinner(t *testing.T) {
	user := activeUser()
	fixture := newServiceFixture(t, []*models.User{user}, []*models.Plan{proPlan()})
	sessionID := openPaidSession(t, fixture, user)

	// Simulate a concurrent confirmer committing between the existence
	// check and the insert: the first lookup misses, the insert collides
	// with the winner's row.
	winner := &models.Transaction{
		UserID:          user.ID,
		OrderID:         "order-winner",
		AmountCents:     4999,
		Currency:        "usd",
		Status:          enums.TransactionStatusCompleted,
		StripeSessionID: sessionID,
		PlanName:        enums.PlanNamePro,
	}
	if err := fixture.txnRepo.Create(context.Background(), winner); err != nil {
		t.Fatalf("seed winner: %v", err)
	}
	fixture.txnRepo.missNextLookup = true

	result, err := fixture.svc.ConfirmSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	if !result.Completed || !result.AlreadyProcessed {
		t.Fatalf("expected already-processed result, got %+v", result)
	}
	if result.Transaction.OrderID != "order-winner" {
		t.Fatalf("expected the winner's entry, got %+v", result.Transaction)
	}
	if len(fixture.notifier.activated) != 0 {
		t.Fatal("losing confirmer must not notify")
	}
}

func TestConfirmSession_unknownPlanIsDataIntegrity(t *testing.T) {
	user := activeUser()
	fixture := newServiceFixture(t, []*models.User{user}, []*models.Plan{proPlan()})
	sessionID := openPaidSession(t, fixture, user)

	delete(fixture.planRepo.plans, enums.PlanNamePro)

	_, err := fixture.svc.ConfirmSession(context.Background(), sessionID)
	assertErrorCode(t, err, pkgerrors.CodeDataIntegrity)
}

func TestConfirmSession_requiresSessionID(t *testing.T) {
	fixture := newServiceFixture(t, nil, nil)
	_, err := fixture.svc.ConfirmSession(context.Background(), "  ")
	assertErrorCode(t, err, pkgerrors.CodeValidation)
}
