package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-ims/atlas-ims/internal/app"
	"github.com/atlas-ims/atlas-ims/internal/classify"
	jobmetrics "github.com/atlas-ims/atlas-ims/internal/jobs"
	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/platform/cache"
	"github.com/atlas-ims/atlas-ims/internal/platform/db"
	"github.com/atlas-ims/atlas-ims/internal/reorder"
	"github.com/atlas-ims/atlas-ims/internal/shared"
	"github.com/atlas-ims/atlas-ims/internal/valuation"
	"github.com/atlas-ims/atlas-ims/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotency := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotency, nil, ledger.ServiceConfig{})

	valuationService := valuation.NewService(ledgerService, valuation.ServiceConfig{Workers: cfg.ClassifyWorkers})

	classifyCache := classify.NewCache(redisClient, cfg.ClassifyCacheTTL)
	classifyService := classify.NewService(classify.Config{
		WindowDays:     cfg.MovementWindowDays,
		ABCAThreshold:  cfg.ABCAThreshold,
		ABCBThreshold:  cfg.ABCBThreshold,
		FastVelocity:   cfg.FastVelocity,
		MediumVelocity: cfg.MediumVelocity,
		Workers:        cfg.ClassifyWorkers,
	}, ledgerService, valuationService, classifyCache, nil)

	reorderService := reorder.NewService(reorder.NewRepository(pool), ledgerService, auditLogger, approvalRecorder, nil,
		reorder.ServiceConfig{WindowDays: cfg.MovementWindowDays})

	handlers := jobs.NewHandlers(logger, classifyService, reorderService, ledgerService, jobmetrics.NewMetrics(nil))

	classifyTask, err := jobs.NewClassifyRefreshTask(time.Now().UTC())
	if err != nil {
		logger.Error("build classify task", slog.Any("error", err))
		os.Exit(1)
	}
	reorderTask, err := jobs.NewReorderScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build reorder task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers.All(),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ClassifyRefreshCron, Task: classifyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReorderScanCron, Task: reorderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityScanCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
