// Command subscriptionworker hosts the subscription-service side of the
// job pipeline: it consumes payment outcomes off q:pay:subscription_update,
// runs them through the webhook inbox (C13) and the subscription state
// machine (C10), and keeps the delayed-queue pump and visibility sweeper
// running for every queue it owns.
package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/billing-pipeline/internal/adapters/postgres"
	"github.com/kevin07696/billing-pipeline/internal/config"
	"github.com/kevin07696/billing-pipeline/internal/inbox"
	"github.com/kevin07696/billing-pipeline/internal/joblog"
	"github.com/kevin07696/billing-pipeline/internal/queue"
	"github.com/kevin07696/billing-pipeline/internal/subscription"
	"github.com/kevin07696/billing-pipeline/internal/usage"
	"github.com/kevin07696/billing-pipeline/pkg/observability"
	"github.com/kevin07696/billing-pipeline/pkg/resourcemgmt"
	"github.com/kevin07696/billing-pipeline/pkg/security"
	"github.com/kevin07696/billing-pipeline/pkg/shutdown"
)

const serviceName = "subscription-service"

func main() {
	logger := initLogger()
	defer logger.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	appLogger := security.NewZapLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbPool, err := postgres.NewPool(ctx, postgres.Config{
		DatabaseURL:     cfg.Database.ConnectionString(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, appLogger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	redisClient := redis.NewClient(mustParseRedisURL(cfg.Redis.URL, logger))

	substrate := queue.NewSubstrate(redisClient)
	lock := queue.NewLock(redisClient)

	subsRepo := postgres.NewSubscriptionRepository(dbPool)
	plansRepo := postgres.NewPlanRepository(dbPool)
	eventsRepo := postgres.NewSubscriptionEventRepository(dbPool)
	inboxRepo := postgres.NewWebhookInboxRepository(dbPool)
	jobLogRepo := postgres.NewJobLogRepository(dbPool)
	usageRepo := postgres.NewUsageRepository(dbPool)

	recorder := joblog.NewLogger(serviceName, jobLogRepo, redisClient, appLogger)
	box := inbox.NewInbox(inboxRepo, appLogger)
	sm := subscription.NewStateMachine(subsRepo, plansRepo, eventsRepo, appLogger)
	meter := usage.NewMeter(redisClient, plansRepo, usageRepo, appLogger)

	subUpdateWorker := queue.NewWorker(queue.QueuePaySubscriptionUpdate, substrate, lock, recorder, appLogger)
	subUpdateWorker.Register("subscription_update", subscription.PaymentOutcomeHandler(sm, box, appLogger))

	usageSyncWorker := queue.NewWorker(queue.QueueSubUsageSync, substrate, lock, recorder, appLogger)
	usageSyncWorker.Register("usage_sync", usage.SyncHandler(meter, usageRepo))

	ownedQueues := []string{
		queue.QueuePaySubscriptionUpdate,
		queue.QueueSubPaymentInitiation,
		queue.QueueSubTrialPayment,
		queue.QueueSubPlanChange,
		queue.QueueSubUsageSync,
	}

	pump := queue.NewPump(substrate, ownedQueues, cfg.Queue.PumpInterval, appLogger)
	sweeper := queue.NewSweeper(substrate, lock, recorder, ownedQueues, cfg.Queue.SweepInterval, appLogger)
	usageSweeper := usage.NewSweeper(redisClient, cfg.Queue.SweepInterval, appLogger)
	depthSampler := queue.NewDepthSampler(substrate, ownedQueues, cfg.Queue.SweepInterval, appLogger)

	runCtx, stopWorkers := context.WithCancel(context.Background())

	healthChecker := observability.NewHealthChecker(dbPool.Raw())
	metricsServer := observability.StartMetricsServer(getEnv("METRICS_PORT", "9090"), healthChecker)

	shutdownManager := shutdown.NewManager(logger, 30*time.Second)
	shutdownManager.RegisterNoErr("workers", stopWorkers)
	shutdownManager.Register("metrics_server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(metricsServer)
	})
	shutdownManager.RegisterCloser("redis", redisClient)
	shutdownManager.RegisterNoErr("database", dbPool.Close)

	goroutines := resourcemgmt.NewGoroutineTracker(logger, resourcemgmt.DefaultConfig())
	go goroutines.StartMonitoring(runCtx)

	workers := []*queue.Worker{subUpdateWorker, usageSyncWorker}
	for _, w := range workers {
		worker := w
		for i := 0; i < cfg.Queue.WorkersPerQueue; i++ {
			goroutines.GoWithContext(runCtx, "queue_worker:"+worker.Queue, func(ctx context.Context) {
				worker.Run(ctx, 5*time.Second)
			})
		}
	}
	goroutines.GoWithContext(runCtx, "delayed_queue_pump", func(ctx context.Context) { pump.Run(ctx) })
	goroutines.GoWithContext(runCtx, "visibility_sweeper", func(ctx context.Context) { sweeper.Run(ctx) })
	goroutines.GoWithContext(runCtx, "usage_sweeper", func(ctx context.Context) { usageSweeper.Run(ctx) })
	goroutines.GoWithContext(runCtx, "queue_depth_sampler", func(ctx context.Context) { depthSampler.Run(ctx) })

	logger.Info("subscription worker started",
		zap.Int("workers_per_queue", cfg.Queue.WorkersPerQueue),
		zap.Strings("queues", ownedQueues),
	)

	shutdownManager.WaitForShutdown()
}

func initLogger() *zap.Logger {
	env := getEnv("ENVIRONMENT", "development")
	if env == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

func mustParseRedisURL(rawURL string, logger *zap.Logger) *redis.Options {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Fatal("failed to parse redis URL", zap.Error(err))
	}
	return opts
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
