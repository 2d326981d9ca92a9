package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careerlinkhq/careerlink-backend/internal/plans"
	"github.com/careerlinkhq/careerlink-backend/internal/transactions"
	"github.com/careerlinkhq/careerlink-backend/internal/users"
	"github.com/careerlinkhq/careerlink-backend/pkg/config"
	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		SessionTTL:       30 * time.Minute,
		RefundWindowDays: 15,
		MaxJobLimit:      5,
		MaxPostLimit:     5,
		Currency:         "usd",
		SuccessURL:       "https://careerlink.test/success",
		CancelURL:        "https://careerlink.test/cancel",
	}
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	claimErr   error
	failClaims bool
}

func newFakeUserRepo(seed ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[uuid.UUID]*models.User{}}
	for _, u := range seed {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) WithTx(tx *gorm.DB) users.Repository { return r }

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) ClaimPaymentSession(ctx context.Context, userID uuid.UUID, expected *string, sessionID string, expiresAt time.Time) (bool, error) {
	if r.claimErr != nil {
		return false, r.claimErr
	}
	if r.failClaims {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	current := u.ActivePaymentSession
	switch {
	case expected == nil && current != nil:
		return false, nil
	case expected != nil && (current == nil || *current != *expected):
		return false, nil
	}
	u.ActivePaymentSession = &sessionID
	u.ActivePaymentSessionExpiresAt = &expiresAt
	return true, nil
}

func (r *fakeUserRepo) ReleasePaymentSession(ctx context.Context, userID uuid.UUID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.ActivePaymentSession == nil || *u.ActivePaymentSession != sessionID {
		return false, nil
	}
	u.ActivePaymentSession = nil
	u.ActivePaymentSessionExpiresAt = nil
	return true, nil
}

func (r *fakeUserRepo) ActivateSubscription(ctx context.Context, userID uuid.UUID, planID uuid.UUID, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.SubscriptionPlanID = &planID
	u.IsSubscriptionActive = true
	u.SubscriptionStartDate = &start
	u.SubscriptionEndDate = &end
	u.SubscriptionCancelled = false
	u.ActivePaymentSession = nil
	u.ActivePaymentSessionExpiresAt = nil
	return nil
}

func (r *fakeUserRepo) DeactivateForRefund(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.SubscriptionPlanID = nil
	u.IsSubscriptionActive = false
	u.SubscriptionStartDate = nil
	u.SubscriptionEndDate = nil
	u.SubscriptionCancelled = true
	return nil
}

func (r *fakeUserRepo) ClearExpiredPaymentSessions(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared int64
	for _, u := range r.users {
		if u.ActivePaymentSession != nil && u.ActivePaymentSessionExpiresAt != nil && u.ActivePaymentSessionExpiresAt.Before(now) {
			u.ActivePaymentSession = nil
			u.ActivePaymentSessionExpiresAt = nil
			cleared++
		}
	}
	return cleared, nil
}

func (r *fakeUserRepo) ListExpiredSessionHolders(ctx context.Context, now time.Time, limit int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		if u.ActivePaymentSession != nil && u.ActivePaymentSessionExpiresAt != nil && u.ActivePaymentSessionExpiresAt.Before(now) {
			out = append(out, *u)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ResetLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reset int64
	for _, u := range r.users {
		residue := u.SubscriptionPlanID != nil || u.IsSubscriptionActive || u.SubscriptionStartDate != nil || u.SubscriptionEndDate != nil
		lapsed := u.SubscriptionEndDate == nil || u.SubscriptionEndDate.Before(now)
		if residue && lapsed {
			u.SubscriptionPlanID = nil
			u.IsSubscriptionActive = false
			u.SubscriptionStartDate = nil
			u.SubscriptionEndDate = nil
			reset++
		}
	}
	return reset, nil
}

func (r *fakeUserRepo) ClearStaleCancelledFlags(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared int64
	for _, u := range r.users {
		if u.SubscriptionCancelled && u.SubscriptionPlanID == nil {
			u.SubscriptionCancelled = false
			cleared++
		}
	}
	return cleared, nil
}

type fakePlanRepo struct {
	plans map[enums.PlanName]*models.Plan
}

func newFakePlanRepo(seed ...*models.Plan) *fakePlanRepo {
	repo := &fakePlanRepo{plans: map[enums.PlanName]*models.Plan{}}
	for _, p := range seed {
		repo.plans[p.Name] = p
	}
	return repo
}

func (r *fakePlanRepo) WithTx(tx *gorm.DB) plans.Repository              { return r }
func (r *fakePlanRepo) Create(ctx context.Context, p *models.Plan) error { r.plans[p.Name] = p; return nil }

func (r *fakePlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	for _, p := range r.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakePlanRepo) FindByName(ctx context.Context, name enums.PlanName) (*models.Plan, error) {
	return r.plans[name], nil
}

func (r *fakePlanRepo) ListActive(ctx context.Context) ([]models.Plan, error) {
	var out []models.Plan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeTxnRepo struct {
	mu        sync.Mutex
	bySession map[string]*models.Transaction

	createErr      error
	missNextLookup bool
}

func newFakeTxnRepo(seed ...*models.Transaction) *fakeTxnRepo {
	repo := &fakeTxnRepo{bySession: map[string]*models.Transaction{}}
	for _, txn := range seed {
		repo.bySession[txn.StripeSessionID] = txn
	}
	return repo
}

func (r *fakeTxnRepo) WithTx(tx *gorm.DB) transactions.Repository { return r }

func (r *fakeTxnRepo) Create(ctx context.Context, txn *models.Transaction) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySession[txn.StripeSessionID]; exists {
		return fmt.Errorf("duplicate key value violates unique constraint %q", "uq_transactions_stripe_session_id")
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = testNow
	}
	clone := *txn
	r.bySession[txn.StripeSessionID] = &clone
	return nil
}

func (r *fakeTxnRepo) FindByStripeSessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missNextLookup {
		r.missNextLookup = false
		return nil, nil
	}
	txn, ok := r.bySession[sessionID]
	if !ok {
		return nil, nil
	}
	clone := *txn
	return &clone, nil
}

func (r *fakeTxnRepo) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Transaction
	for _, txn := range r.bySession {
		if txn.UserID != userID {
			continue
		}
		if latest == nil || txn.CreatedAt.After(latest.CreatedAt) {
			latest = txn
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (r *fakeTxnRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, txn := range r.bySession {
		if txn.UserID == userID {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (r *fakeTxnRepo) MarkRefunded(ctx context.Context, id uuid.UUID, refundID, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.bySession {
		if txn.ID != id {
			continue
		}
		if txn.Status != enums.TransactionStatusCompleted {
			return false, nil
		}
		txn.Status = enums.TransactionStatusRefunded
		txn.StripeRefundID = &refundID
		txn.RefundReason = &reason
		txn.RefundDate = &at
		return true, nil
	}
	return false, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*CheckoutSession
	created  []CreateSessionParams
	refunds  []string

	createErr error
	getErr    error
	refundErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*CheckoutSession{}}
}

func (g *fakeGateway) CreateSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, params)
	sess := &CheckoutSession{
		ID:          fmt.Sprintf("cs_test_%d", len(g.created)),
		URL:         "https://checkout.stripe.test/pay",
		Status:      SessionStatusOpen,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		ExpiresAt:   params.ExpiresAt,
		Metadata: map[string]string{
			"order_id":  params.OrderID,
			"plan_name": params.PlanName.String(),
			"user_id":   params.UserID.String(),
		},
	}
	g.sessions[sess.ID] = sess
	return sess, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	clone := *sess
	return &clone, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, paymentIntentID)
	return &Refund{ID: fmt.Sprintf("re_test_%d", len(g.refunds))}, nil
}

func (g *fakeGateway) markPaid(sessionID, paymentIntentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess := g.sessions[sessionID]
	sess.Status = SessionStatusComplete
	sess.Paid = true
	sess.PaymentIntentID = paymentIntentID
}

type fakeNotifier struct {
	mu        sync.Mutex
	activated []uuid.UUID
	refunded  []uuid.UUID
}

func (n *fakeNotifier) SubscriptionActivated(ctx context.Context, userID uuid.UUID, plan enums.PlanName) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, userID)
}

func (n *fakeNotifier) SubscriptionRefunded(ctx context.Context, userID uuid.UUID, plan enums.PlanName) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunded = append(n.refunded, userID)
}

type fakeTxRunner struct {
	err error
}

func (r *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(nil)
}

type serviceFixture struct {
	svc      *Service
	userRepo *fakeUserRepo
	planRepo *fakePlanRepo
	txnRepo  *fakeTxnRepo
	gateway  *fakeGateway
	notifier *fakeNotifier
	runner   *fakeTxRunner
}

func newServiceFixture(t *testing.T, seedUsers []*models.User, seedPlans []*models.Plan) *serviceFixture {
	t.Helper()

	fixture := &serviceFixture{
		userRepo: newFakeUserRepo(seedUsers...),
		planRepo: newFakePlanRepo(seedPlans...),
		txnRepo:  newFakeTxnRepo(),
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
		runner:   &fakeTxRunner{},
	}

	svc, err := NewService(ServiceParams{
		UserRepo:          fixture.userRepo,
		PlanRepo:          fixture.planRepo,
		TransactionRepo:   fixture.txnRepo,
		Gateway:           fixture.gateway,
		Notifier:          fixture.notifier,
		TransactionRunner: fixture.runner,
		Logger:            logger.New(logger.Options{ServiceName: "test"}),
		Config:            testConfig(),
		Now:               func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func proPlan() *models.Plan {
	return &models.Plan{
		ID:           uuid.New(),
		Name:         enums.PlanNamePro,
		PriceCents:   4999,
		ValidityDays: 30,
		IsActive:     true,
	}
}

func activeUser() *models.User {
	return &models.User{
		ID:       uuid.New(),
		Email:    "seeker@careerlink.test",
		IsActive: true,
	}
}
