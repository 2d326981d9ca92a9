package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careerlinkhq/careerlink-backend/api/controllers"
	webhookcontrollers "github.com/careerlinkhq/careerlink-backend/api/controllers/webhooks"
	"github.com/careerlinkhq/careerlink-backend/api/middleware"
	stripewebhook "github.com/careerlinkhq/careerlink-backend/internal/webhooks/stripe"
	"github.com/careerlinkhq/careerlink-backend/pkg/config"
	"github.com/careerlinkhq/careerlink-backend/pkg/db"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
	"github.com/careerlinkhq/careerlink-backend/pkg/redis"
	"github.com/careerlinkhq/careerlink-backend/pkg/stripe"
)

// RouterParams collects everything the HTTP surface needs.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             *db.Client
	Redis          *redis.Client
	PaymentService controllers.PaymentService
	PlanService    controllers.PlanService
	StripeClient   *stripe.Client
	WebhookService *stripewebhook.Service
	WebhookGuard   *stripewebhook.IdempotencyGuard
}

// NewRouter wires the HTTP routes.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, readinessDeps(p)))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.WebhookService, p.StripeClient, p.WebhookGuard, p.Logger))
	})

	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", controllers.ListPlans(p.PlanService, p.Logger))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(p.Config.JWT, p.Logger))
		r.Post("/checkout-session", controllers.CreateCheckoutSession(p.PaymentService, p.Logger))
		r.Post("/confirm", controllers.ConfirmPayment(p.PaymentService, p.Logger))
		r.Post("/refund", controllers.RequestRefund(p.PaymentService, p.Logger))
		r.Get("/transactions/latest", controllers.LatestTransaction(p.PaymentService, p.Logger))
		r.Get("/transactions/{sessionID}", controllers.TransactionDetails(p.PaymentService, p.Logger))
	})

	return r
}

func readinessDeps(p RouterParams) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["database"] = p.DB
	}
	if p.Redis != nil {
		deps["redis"] = p.Redis
	}
	return deps
}
