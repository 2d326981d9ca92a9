package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/careerlinkhq/careerlink-backend/internal/cron"
	"github.com/careerlinkhq/careerlink-backend/internal/notifications"
	"github.com/careerlinkhq/careerlink-backend/internal/payments"
	"github.com/careerlinkhq/careerlink-backend/internal/plans"
	"github.com/careerlinkhq/careerlink-backend/internal/transactions"
	"github.com/careerlinkhq/careerlink-backend/internal/users"
	"github.com/careerlinkhq/careerlink-backend/pkg/config"
	"github.com/careerlinkhq/careerlink-backend/pkg/db"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
	"github.com/careerlinkhq/careerlink-backend/pkg/metrics"
	"github.com/careerlinkhq/careerlink-backend/pkg/migrate"
	"github.com/careerlinkhq/careerlink-backend/pkg/pubsub"
	"github.com/careerlinkhq/careerlink-backend/pkg/redis"
	"github.com/careerlinkhq/careerlink-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	cleanupJob, err := cron.NewSessionCleanupJob(userRepo, logg, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create session cleanup job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewPaymentReconcileJob(userRepo, paymentService, logg, cfg.Cron.ReconcileBatch, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconcile job", err)
		os.Exit(1)
	}
	resetJob, err := cron.NewSubscriptionResetJob(userRepo, logg, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription reset job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	frequent, err := newScheduler(cfg, logg, redisClient, metricsCollector, schedulerSpec{
		name:     "frequent",
		interval: cfg.Cron.FrequentInterval,
		jobs:     []cron.Job{cleanupJob, reconcileJob},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create frequent scheduler", err)
		os.Exit(1)
	}

	periodic, err := newScheduler(cfg, logg, redisClient, metricsCollector, schedulerSpec{
		name:     "periodic",
		interval: cfg.Cron.PeriodicInterval,
		jobs:     []cron.Job{resetJob},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create periodic scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	var wg sync.WaitGroup
	for _, svc := range []*cron.Service{frequent, periodic} {
		wg.Add(1)
		go func(svc *cron.Service) {
			defer wg.Done()
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "scheduler stopped unexpectedly", err)
				stop()
			}
		}(svc)
	}
	wg.Wait()

	logg.Info(ctx, "cron worker shutting down gracefully")
}

type schedulerSpec struct {
	name     string
	interval time.Duration
	jobs     []cron.Job
}

func newScheduler(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, m *metrics.CronJobMetrics, spec schedulerSpec) (*cron.Service, error) {
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(fmt.Sprintf("cron-%s-%s", spec.name, env)), spec.interval)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Name:     spec.name,
		Logger:   logg,
		Registry: cron.NewRegistry(spec.jobs...),
		Lock:     lock,
		Metrics:  m,
		Interval: spec.interval,
	})
}
