// Command paymentworker hosts the payment-service side of the job
// pipeline: it consumes subscription-originated charge jobs off
// q:sub:payment_initiation, q:sub:trial_payment and q:sub:plan_change,
// drives them through the payment processor (C11) and the simulated
// gateway, and services q:pay:refund_initiation for trial-charge refunds.
// It keeps the delayed-queue pump and visibility sweeper running for
// every queue it owns.
package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/billing-pipeline/internal/adapters/gateway"
	"github.com/kevin07696/billing-pipeline/internal/adapters/postgres"
	"github.com/kevin07696/billing-pipeline/internal/config"
	"github.com/kevin07696/billing-pipeline/internal/interservice"
	"github.com/kevin07696/billing-pipeline/internal/joblog"
	"github.com/kevin07696/billing-pipeline/internal/payment"
	"github.com/kevin07696/billing-pipeline/internal/queue"
	"github.com/kevin07696/billing-pipeline/internal/webhook"
	"github.com/kevin07696/billing-pipeline/pkg/observability"
	"github.com/kevin07696/billing-pipeline/pkg/resourcemgmt"
	"github.com/kevin07696/billing-pipeline/pkg/security"
	"github.com/kevin07696/billing-pipeline/pkg/shutdown"
)

const serviceName = "payment-service"

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

	transactionsRepo := postgres.NewTransactionRepository(dbPool)
	jobLogRepo := postgres.NewJobLogRepository(dbPool)

	recorder := joblog.NewLogger(serviceName, jobLogRepo, redisClient, appLogger)

	gw := gateway.NewSimulator(gateway.Config{
		SuccessCardLastFour: cfg.Gateway.SuccessCardLastFour,
		SuccessRate:         cfg.Gateway.SuccessRate,
		MinDelay:            cfg.Gateway.MinDelay,
		MaxDelay:            cfg.Gateway.MaxDelay,
	})

	signer := webhook.NewSigner(cfg.Webhook.SigningSecret, time.Duration(cfg.Webhook.ToleranceSeconds)*time.Second)

	var tokens webhook.TokenIssuer
	if cfg.Webhook.ServiceJWTSecret != "" {
		tokens = interservice.NewTokenIssuer(cfg.Webhook.ServiceJWTSecret, 5*time.Minute, serviceName, serviceName)
	}

	whClient := webhook.NewClient(
		cfg.Webhook.SubscriptionURL,
		signer,
		tokens,
		cfg.Webhook.AppName,
		cfg.Webhook.AppVersion,
		3,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second,
		appLogger,
	)

	processor := payment.NewProcessor(transactionsRepo, gw, substrate, whClient, "/v1/webhooks/payment", appLogger)

	paymentInitiationWorker := queue.NewWorker(queue.QueueSubPaymentInitiation, substrate, lock, recorder, appLogger)
	paymentInitiationWorker.Register("payment_initiation", processor.ChargeHandler("initial"))

	trialPaymentWorker := queue.NewWorker(queue.QueueSubTrialPayment, substrate, lock, recorder, appLogger)
	trialPaymentWorker.Register("trial_payment", processor.ChargeHandler("trial"))

	planChangeWorker := queue.NewWorker(queue.QueueSubPlanChange, substrate, lock, recorder, appLogger)
	planChangeWorker.Register("plan_change", processor.ChargeHandler("upgrade"))

	refundWorker := queue.NewWorker(queue.QueuePayRefundInitiation, substrate, lock, recorder, appLogger)
	refundWorker.Register("refund_initiation", processor.RefundHandler())

	ownedQueues := []string{
		queue.QueueSubPaymentInitiation,
		queue.QueueSubTrialPayment,
		queue.QueueSubPlanChange,
		queue.QueuePayRefundInitiation,
	}

	pump := queue.NewPump(substrate, ownedQueues, cfg.Queue.PumpInterval, appLogger)
	sweeper := queue.NewSweeper(substrate, lock, recorder, ownedQueues, cfg.Queue.SweepInterval, appLogger)
	depthSampler := queue.NewDepthSampler(substrate, ownedQueues, cfg.Queue.SweepInterval, appLogger)

	runCtx, stopWorkers := context.WithCancel(context.Background())

	healthChecker := observability.NewHealthChecker(dbPool.Raw())
	metricsServer := observability.StartMetricsServer(getEnv("METRICS_PORT", "9091"), healthChecker)

	shutdownManager := shutdown.NewManager(logger, 30*time.Second)
	shutdownManager.RegisterNoErr("workers", stopWorkers)
	shutdownManager.Register("metrics_server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(metricsServer)
	})
	shutdownManager.RegisterCloser("redis", redisClient)
	shutdownManager.RegisterNoErr("database", dbPool.Close)

	goroutines := resourcemgmt.NewGoroutineTracker(logger, resourcemgmt.DefaultConfig())
	go goroutines.StartMonitoring(runCtx)

	workers := []*queue.Worker{paymentInitiationWorker, trialPaymentWorker, planChangeWorker, refundWorker}
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
	goroutines.GoWithContext(runCtx, "queue_depth_sampler", func(ctx context.Context) { depthSampler.Run(ctx) })

	logger.Info("payment worker started",
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
