package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/idempotency"
	"github.com/kyungseok/course-payments/common/logger"
	"github.com/kyungseok/course-payments/common/messaging"
	"github.com/kyungseok/course-payments/common/retry"
	"github.com/kyungseok/course-payments/services/payment/internal/auth"
	"github.com/kyungseok/course-payments/services/payment/internal/config"
	"github.com/kyungseok/course-payments/services/payment/internal/gateway"
	"github.com/kyungseok/course-payments/services/payment/internal/handler"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
	"github.com/kyungseok/course-payments/services/payment/internal/service"
	"github.com/kyungseok/course-payments/services/payment/internal/worker"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger("course-payments", cfg.Development)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	db, err := sql.Open("postgres", cfg.DBDSN)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := retry.Do(ctx, retry.DefaultConfig(), log, "database ping", db.PingContext); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}
	log.Info("connected to database")

	// Redis
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	if err := retry.Do(ctx, retry.DefaultConfig(), log, "redis ping", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	log.Info("connected to redis")

	// Kafka
	publisher, err := retry.DoWithResult(ctx, retry.DefaultConfig(), log, "kafka producer",
		func(context.Context) (*messaging.KafkaPublisher, error) {
			return messaging.NewKafkaPublisher(cfg.KafkaBrokers, "course-payments", log)
		})
	if err != nil {
		log.Fatal("failed to create kafka publisher", zap.Error(err))
	}
	defer publisher.Close()
	log.Info("kafka publisher initialized", zap.Strings("brokers", cfg.KafkaBrokers))

	// Repositories
	paymentRepo := repository.NewPaymentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	settings := repository.NewSettingsRepository(db)

	// Gateways read credentials on every call so settings changes apply without a restart
	httpClient := gateway.NewHTTPClient(cfg.GatewayTimeout)
	gateways := gateway.NewRegistry(
		gateway.NewBkash(settings, httpClient, log.Named("bkash")),
		gateway.NewSSLCommerz(settings, httpClient, log.Named("sslcommerz")),
	)

	paymentService := service.NewPaymentService(
		repository.NewTransactor(db),
		paymentRepo,
		enrollmentRepo,
		courseRepo,
		profileRepo,
		outboxRepo,
		gateways,
		idempotency.NewRedisStore(redisClient, "course-payments"),
		cfg.VerifyLockTTL,
		log,
	)

	outboxWorker := worker.NewOutboxWorker(outboxRepo, publisher, log, cfg.OutboxInterval)
	go outboxWorker.Start(ctx)

	authenticator := auth.NewHTTPAuthenticator(cfg.AuthUserURL, cfg.AuthAPIKey, &http.Client{Timeout: 10 * time.Second}, log)
	httpHandler := handler.NewHTTPHandler(paymentService, authenticator, cfg.FrontendURL, log)

	server := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           httpHandler.Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server starting", zap.String("port", cfg.ServicePort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	cancel()
	log.Info("server stopped")
}
