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

	"github.com/craftline-erp/craftline-erp/internal/amc"
	"github.com/craftline-erp/craftline-erp/internal/app"
	"github.com/craftline-erp/craftline-erp/internal/catalog"
	"github.com/craftline-erp/craftline-erp/internal/fulfillment"
	"github.com/craftline-erp/craftline-erp/internal/holds"
	"github.com/craftline-erp/craftline-erp/internal/observability"
	"github.com/craftline-erp/craftline-erp/internal/payments"
	"github.com/craftline-erp/craftline-erp/internal/platform/cache"
	"github.com/craftline-erp/craftline-erp/internal/platform/db"
	"github.com/craftline-erp/craftline-erp/internal/shared"
	"github.com/craftline-erp/craftline-erp/internal/stock"
	"github.com/craftline-erp/craftline-erp/internal/warranty"
	"github.com/craftline-erp/craftline-erp/jobs"
)

func main() {
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

	var summaryCache *stock.SummaryCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, summary cache disabled", slog.Any("error", err))
	} else {
		defer func() { _ = redisClient.Close() }()
		summaryCache = stock.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	}

	metrics := observability.NewMetrics()
	auditLog := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	catalogRepo := catalog.NewRepository(pool)

	stockService := stock.NewService(
		stock.NewRepository(pool), catalogRepo, auditLog, idempotency, metrics, summaryCache, logger)
	holdsService := holds.NewService(holds.NewRepository(pool), auditLog, logger)

	paymentsRepo := payments.NewRepository(pool)
	paymentsService := payments.NewService(paymentsRepo, auditLog, idempotency, metrics, logger)
	warrantyService := warranty.NewService(warranty.NewRepository(pool), paymentsRepo, auditLog, logger)
	amcService := amc.NewService(
		amc.NewRepository(pool), paymentsRepo, auditLog, amc.VisitCapPolicy(cfg.AMCVisitCapPolicy), logger)
	fulfillmentService := fulfillment.NewService(
		fulfillment.NewRepository(pool), paymentsRepo, auditLog, logger)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		StockHandler:       stock.NewHandler(stockService),
		HoldsHandler:       holds.NewHandler(holdsService),
		FulfillmentHandler: fulfillment.NewHandler(fulfillmentService, paymentsService, warrantyService, amcService),
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
