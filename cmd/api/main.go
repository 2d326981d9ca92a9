package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/careerlinkhq/careerlink-backend/api/routes"
	"github.com/careerlinkhq/careerlink-backend/internal/notifications"
	"github.com/careerlinkhq/careerlink-backend/internal/payments"
	"github.com/careerlinkhq/careerlink-backend/internal/plans"
	"github.com/careerlinkhq/careerlink-backend/internal/transactions"
	"github.com/careerlinkhq/careerlink-backend/internal/users"
	stripewebhook "github.com/careerlinkhq/careerlink-backend/internal/webhooks/stripe"
	"github.com/careerlinkhq/careerlink-backend/pkg/config"
	"github.com/careerlinkhq/careerlink-backend/pkg/db"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
	"github.com/careerlinkhq/careerlink-backend/pkg/migrate"
	"github.com/careerlinkhq/careerlink-backend/pkg/pubsub"
	"github.com/careerlinkhq/careerlink-backend/pkg/redis"
	"github.com/careerlinkhq/careerlink-backend/pkg/stripe"
)

const webhookDedupTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	var notifier payments.Notifier
	if cfg.GCP.ProjectID != "" {
		psClient, psErr := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if psErr != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", psErr)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()

		notificationService, nsErr := notifications.NewService(notifications.ServiceParams{
			Publisher: notifications.NewPubSubPublisher(psClient.NotificationPublisher()),
			Logger:    logg,
		})
		if nsErr != nil {
			logg.Error(context.Background(), "failed to create notification service", nsErr)
			os.Exit(1)
		}
		notifier = notificationService
	} else {
		logg.Warn(context.Background(), "pubsub project not configured; lifecycle notifications disabled")
	}

	userRepo := users.NewRepository(dbClient.DB())
	planRepo := plans.NewRepository(dbClient.DB())
	txnRepo := transactions.NewRepository(dbClient.DB())

	paymentService, err := payments.NewService(payments.ServiceParams{
		UserRepo:          userRepo,
		PlanRepo:          planRepo,
		TransactionRepo:   txnRepo,
		Gateway:           payments.NewStripeGateway(stripeClient),
		Notifier:          notifier,
		TransactionRunner: dbClient,
		Logger:            logg,
		Config:            cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(plans.ServiceParams{Repo: planRepo, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: paymentService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookDedupTTL, "stripe-events")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			PaymentService: paymentService,
			PlanService:    planService,
			StripeClient:   stripeClient,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
