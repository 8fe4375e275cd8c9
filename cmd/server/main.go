package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/cuotas/backend/internal/application/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/infrastructure/auth"
	"github.com/cuotas/backend/internal/infrastructure/cache"
	"github.com/cuotas/backend/internal/infrastructure/config"
	"github.com/cuotas/backend/internal/infrastructure/event"
	"github.com/cuotas/backend/internal/infrastructure/logger"
	"github.com/cuotas/backend/internal/infrastructure/payment"
	"github.com/cuotas/backend/internal/infrastructure/persistence"
	"github.com/cuotas/backend/internal/infrastructure/storage"
	"github.com/cuotas/backend/internal/infrastructure/telemetry"
	"github.com/cuotas/backend/internal/interfaces/http/handler"
	"github.com/cuotas/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting payment reconciliation backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Database with the zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories and transaction boundary
	studentRepo := persistence.NewGormStudentRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRecordRepository(db.DB)
	txManager := persistence.NewGormTransactionManager(db.DB)

	// Receipt storage
	receiptStorage, err := storage.NewS3ReceiptStorage(&cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize receipt storage", zap.Error(err))
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := receiptStorage.EnsureBucket(ctx); err != nil {
			log.Warn("Could not ensure receipt bucket, uploads may fail", zap.Error(err))
		}
		cancel()
	}

	// Payment gateway client
	gatewayClient, err := payment.NewMercadoPagoAdapter(&cfg.Gateway)
	if err != nil {
		log.Fatal("Failed to initialize gateway client", zap.Error(err))
	}

	// Webhook idempotency store
	var idempotencyStore shared.IdempotencyStore
	if cfg.Webhook.UseRedis {
		factory := cache.NewIdempotencyStoreFactory(cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(true))
		idempotencyStore, err = factory.CreateStore()
		if err != nil {
			log.Fatal("Failed to initialize idempotency store", zap.Error(err))
		}
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
		log.Info("Using in-memory idempotency store")
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	jwtService := auth.NewJWTService(cfg.JWT)

	// Domain event delivery: in-process bus with the audit trail subscribed
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(appbilling.NewLedgerAuditHandler(log))

	// Application services
	intakeService := appbilling.NewPaymentIntakeService(txManager, studentRepo, paymentRepo, receiptStorage, eventBus, log)
	reviewService := appbilling.NewPaymentReviewService(txManager, eventBus, log)
	studentService := appbilling.NewStudentService(studentRepo, paymentRepo, eventBus, log)
	webhookService := appbilling.NewGatewayWebhookService(
		txManager, studentRepo, paymentRepo, gatewayClient,
		idempotencyStore, shared.IdempotencyConfig{
			Enabled: cfg.Webhook.IdempotencyEnabled,
			TTL:     cfg.Webhook.IdempotencyTTL,
		}, eventBus, log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.New(router.Config{
		Logger:     log,
		JWTService: jwtService,
		HTTP:       cfg.HTTP,
		Telemetry:  cfg.Telemetry,
		Handlers: router.Handlers{
			Student: handler.NewStudentHandler(studentService),
			Payment: handler.NewPaymentHandler(intakeService, reviewService),
			Webhook: handler.NewWebhookHandler(webhookService, log),
		},
		HealthCheck: db.Ping,
	})

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
