package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/craftline-erp/craftline-erp/internal/amc"
	"github.com/craftline-erp/craftline-erp/internal/app"
	"github.com/craftline-erp/craftline-erp/internal/finance"
	"github.com/craftline-erp/craftline-erp/internal/holds"
	"github.com/craftline-erp/craftline-erp/internal/observability"
	"github.com/craftline-erp/craftline-erp/internal/platform/db"
	"github.com/craftline-erp/craftline-erp/internal/shared"
	"github.com/craftline-erp/craftline-erp/internal/warranty"
	"github.com/craftline-erp/craftline-erp/jobs"
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

	metrics := observability.NewMetrics()
	auditLog := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	financeService := finance.NewService(finance.NewRepository(pool), metrics, logger, cfg.WorkerConcurrency)
	warrantyService := warranty.NewService(warranty.NewRepository(pool), nil, auditLog, logger)
	amcService := amc.NewService(
		amc.NewRepository(pool), nil, auditLog, amc.VisitCapPolicy(cfg.AMCVisitCapPolicy), logger)
	holdsService := holds.NewService(holds.NewRepository(pool), auditLog, logger)

	handlers, cron, err := jobs.Registrations(jobs.Services{
		Finance:     financeService,
		Warranties:  warrantyService,
		Contracts:   amcService,
		Holds:       holdsService,
		Idempotency: idempotency,
	}, jobs.RegistryConfig{
		OutboxBatchSize:      cfg.OutboxBatchSize,
		IdempotencyRetention: cfg.IdempotencyRetention,
	}, logger)
	if err != nil {
		logger.Error("build job registrations", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	start := time.Now()
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down", slog.Duration("uptime", time.Since(start)))
}
