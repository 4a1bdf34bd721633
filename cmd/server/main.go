package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/auth"
	"github.com/firmledger/backend/internal/infrastructure/cache"
	"github.com/firmledger/backend/internal/infrastructure/config"
	"github.com/firmledger/backend/internal/infrastructure/event"
	"github.com/firmledger/backend/internal/infrastructure/logger"
	"github.com/firmledger/backend/internal/infrastructure/persistence"
	"github.com/firmledger/backend/internal/infrastructure/storage"
	"github.com/firmledger/backend/internal/infrastructure/telemetry"
	"github.com/firmledger/backend/internal/interfaces/http/handler"
	"github.com/firmledger/backend/internal/interfaces/http/middleware"
	"github.com/firmledger/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ledger service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = meterProvider.Shutdown(shutdownCtx)
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:  meterProvider.Meter("ledger"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger:        log,
		LogLevel:      logger.MapGormLogLevel(cfg.Log.Level),
		SlowThreshold: 200 * time.Millisecond,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.DBTraceEnabled {
		tracing := telemetry.DefaultDBTracingConfig()
		tracing.Enabled = true
		tracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		if err := telemetry.RegisterDBTracing(db.DB, tracing, log); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(ctx, db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}

	retrier := persistence.NewBackoffRetrier(persistence.RetryConfig{
		MaxAttempts:     cfg.Ledger.RetryMaxAttempts,
		InitialInterval: cfg.Ledger.RetryInitialInterval,
		MaxInterval:     cfg.Ledger.RetryMaxInterval,
	}, log, persistence.WithRetryMetrics(ledgerMetrics))
	scope := persistence.NewGormTransactionScope(db.DB, retrier)

	// Feed delivery dedupe and frozen snapshot storage
	deliveries, err := cache.NewDeliveryStore(ctx, cfg.Redis, cfg.Ledger.DeliveryKeyPrefix, log)
	if err != nil {
		log.Fatal("Failed to initialize delivery store", zap.Error(err))
	}
	snapshots, err := storage.NewSnapshotStore(ctx, &cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize snapshot store", zap.Error(err))
	}

	// Event bus and projections
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(appledger.NewLineageProjector(persistence.NewGormLineageIndex(db.DB), retrier, log))
	bus.Subscribe(event.NewIdempotentHandler(
		appledger.NewInvoiceSnapshotArchiver(scope, snapshots, log),
		deliveries, log,
		event.WithHandlerName("invoice_snapshot_archiver"),
	))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bus.Stop(stopCtx); err != nil {
			log.Warn("Event bus did not drain", zap.Error(err))
		}
	}()

	// Application services
	svcCfg := appledger.ServiceConfig{
		Scope:     scope,
		Publisher: bus,
		Logger:    log,
		Metrics:   ledgerMetrics,
	}
	idempotency := shared.DefaultIdempotencyConfig()
	if cfg.Ledger.DeliveryTTL > 0 {
		idempotency.TTL = cfg.Ledger.DeliveryTTL
	}
	ingestionService := appledger.NewIngestionService(svcCfg)
	quoteService := appledger.NewQuoteService(svcCfg)
	invoiceService := appledger.NewInvoiceService(svcCfg)
	adjustmentService := appledger.NewAdjustmentService(svcCfg)
	bindingService := appledger.NewBindingService(svcCfg, deliveries, idempotency)
	lineageService := appledger.NewLineageService(svcCfg)
	portalService := appledger.NewPortalService(persistence.NewGormPortalSource(db.DB), log)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: cfg.Telemetry.Enabled}),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(meterProvider.Meter("ledger.http")),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	systemHandler := handler.NewSystemHandler(db)
	engine.GET("/health", systemHandler.Health)
	engine.GET("/ready", systemHandler.Ready)

	jwtService := auth.NewJWTService(cfg.JWT)
	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.Logger = log

	router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithMiddleware(middleware.JWTAuthMiddlewareWithConfig(jwtConfig), middleware.SpanEnricher()),
	).Register(router.LedgerGroups(router.Handlers{
		Feeds:    handler.NewFeedHandler(ingestionService, bindingService),
		Triggers: handler.NewTriggerHandler(ingestionService),
		Quotes:   handler.NewQuoteHandler(quoteService),
		Invoices: handler.NewInvoiceHandler(invoiceService, adjustmentService),
		Bindings: handler.NewBindingHandler(bindingService),
		Lineage:  handler.NewLineageHandler(lineageService),
		Portal:   handler.NewPortalHandler(portalService),
	})...).Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server exited gracefully")
}
