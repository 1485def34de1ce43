package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-ims/atlas-ims/internal/app"
	"github.com/atlas-ims/atlas-ims/internal/classify"
	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/observability"
	"github.com/atlas-ims/atlas-ims/internal/platform/cache"
	"github.com/atlas-ims/atlas-ims/internal/platform/db"
	"github.com/atlas-ims/atlas-ims/internal/reorder"
	"github.com/atlas-ims/atlas-ims/internal/shared"
	"github.com/atlas-ims/atlas-ims/internal/valuation"
	"github.com/atlas-ims/atlas-ims/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, classification cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotency := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotency, metrics, ledger.ServiceConfig{})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	valuationService := valuation.NewService(ledgerService, valuation.ServiceConfig{Workers: cfg.ClassifyWorkers})
	valuationHandler := valuation.NewHandler(logger, valuationService)

	classifyCache := classify.NewCache(redisClient, cfg.ClassifyCacheTTL)
	if redisClient != nil {
		if err := classifyCache.ListenForInvalidation(ctx, ""); err != nil {
			logger.Warn("cache invalidation listener", slog.Any("error", err))
		}
	}
	classifyService := classify.NewService(classify.Config{
		WindowDays:     cfg.MovementWindowDays,
		ABCAThreshold:  cfg.ABCAThreshold,
		ABCBThreshold:  cfg.ABCBThreshold,
		FastVelocity:   cfg.FastVelocity,
		MediumVelocity: cfg.MediumVelocity,
		Workers:        cfg.ClassifyWorkers,
	}, ledgerService, valuationService, classifyCache, metrics)
	classifyHandler := classify.NewHandler(logger, classifyService)

	reorderRepo := reorder.NewRepository(pool)
	reorderService := reorder.NewService(reorderRepo, ledgerService, auditLogger, approvalRecorder, metrics,
		reorder.ServiceConfig{WindowDays: cfg.MovementWindowDays})
	reorderHandler := reorder.NewHandler(logger, reorderService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		ValuationHandler: valuationHandler,
		ClassifyHandler:  classifyHandler,
		ReorderHandler:   reorderHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
