package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/database"
	applog "checkout-service/logger"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"
	"checkout-service/retry"
	"checkout-service/routes"
	servicepkg "checkout-service/services"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// shutdownGrace lets a checkout that started just before shutdown run to its
// request timeout and still write its ledger row.
const shutdownGrace = routes.RequestTimeout + 5*time.Second

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(rootCtx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	awsCfg, awsErr := aws_pkg.LoadAWSConfig(rootCtx)

	var cwWriter io.Writer
	if cfg.CloudWatchEnabled && awsErr == nil {
		cw, err := aws_pkg.NewCloudWatchLogsClient(rootCtx, awsCfg, cfg.CloudWatchLogGroup, cfg.ServiceName)
		if err != nil {
			log.Printf("CloudWatch Logs unavailable, logging to stdout only: %v", err)
		} else {
			cwWriter = cw
		}
	}

	logger, err := applog.New(cfg.Env, cwWriter)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if awsErr != nil {
		logger.Warn("AWS config unavailable, SNS/SQS/metrics disabled", zap.Error(awsErr))
	}

	ledger, closeLedger := openLedger(cfg, awsCfg, awsErr, logger)
	defer closeLedger()

	var idem repository.IdempotencyStore
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, idempotency keys disabled", zap.Error(err))
		} else {
			defer rdb.Close() //nolint:errcheck
			idem = repository.NewRedisIdempotencyStore(rdb)
			logger.Info("Connected to Redis")
		}
	}

	var registry providers.Registry
	if cfg.RegistryMode == config.RegistryFake {
		logger.Warn("Using in-memory fake registry")
		registry = providers.NewFakeRegistry()
	} else {
		registry = providers.NewRegistryClient(cfg.RegistryBaseURL, cfg.RegistryAPIKey, cfg.RegistryTimeout)
	}

	var payments providers.PaymentProvider = registry
	if cfg.PaymentProvider == config.PaymentsStripe {
		payments = providers.NewStripeProvider(cfg.StripeAPIKey)
	}

	var snsClient aws_pkg.SNSPublisher
	var metrics servicepkg.MetricsRecorder
	if awsErr == nil {
		snsClient = aws_pkg.NewSNSClient(awsCfg, logger)
		metrics = aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	policy := retry.Policy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}
	checkoutService := servicepkg.NewCheckoutService(servicepkg.CheckoutDeps{
		Coordinator: servicepkg.NewOrderCoordinator(registry, policy, logger),
		Payments: servicepkg.NewPaymentPoller(payments, policy, logger,
			servicepkg.WithPollInterval(cfg.PollInterval),
			servicepkg.WithMaxPolls(cfg.MaxPolls),
		),
		Fallback:       servicepkg.NewFallbackRecorder(time.Now),
		Ledger:         ledger,
		Idempotency:    idem,
		IdempotencyTTL: cfg.IdempotencyTTL,
		SNS:            snsClient,
		SNSTopicArn:    cfg.OrderEventsTopicARN,
		Metrics:        metrics,
		Logger:         logger,
	})

	if cfg.SettlementQueueURL != "" && awsErr == nil {
		consumer := servicepkg.NewPaymentSettlementConsumer(
			aws_pkg.NewSQSConsumer(awsCfg, cfg.SettlementQueueURL, logger),
			ledger, metrics, logger,
		)
		go func() {
			if err := consumer.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Settlement consumer stopped", zap.Error(err))
			}
		}()
	}

	checkoutController := controllers.NewCheckoutController(checkoutService, logger)
	r := routes.NewRouter(cfg, checkoutController, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Checkout service started",
		zap.String("port", cfg.Port),
		zap.String("ledger", cfg.LedgerBackend),
		zap.String("registry", cfg.RegistryMode),
		zap.String("payments", cfg.PaymentProvider),
	)
	<-rootCtx.Done()
	logger.Info("Shutting down checkout service...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited cleanly")
}

func openLedger(cfg *config.Config, awsCfg sdkaws.Config, awsErr error, logger *zap.Logger) (repository.OrderLedger, func()) {
	if cfg.LedgerBackend == config.LedgerDynamoDB {
		if awsErr != nil {
			logger.Fatal("DynamoDB ledger requires AWS config", zap.Error(awsErr))
		}
		logger.Info("Using DynamoDB ledger", zap.String("table", cfg.DynamoTable))
		return repository.NewDynamoOrderLedger(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), func() {}
	}

	db, err := database.ConnectPostgres(cfg.PostgresDSN(), logger, &models.LocalOrder{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	return repository.NewGormOrderLedger(db), func() {
		if err := database.Close(db); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
