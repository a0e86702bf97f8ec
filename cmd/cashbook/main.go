package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/cashbook/cmd/cashbook/cli"
	"github.com/odyssey-erp/cashbook/internal/app"
	"github.com/odyssey-erp/cashbook/internal/datasheet"
	datasheethttp "github.com/odyssey-erp/cashbook/internal/datasheet/http"
	"github.com/odyssey-erp/cashbook/internal/events"
	"github.com/odyssey-erp/cashbook/internal/events/kafka"
	"github.com/odyssey-erp/cashbook/internal/ledger"
	ledgerhttp "github.com/odyssey-erp/cashbook/internal/ledger/http"
	"github.com/odyssey-erp/cashbook/internal/observability"
	"github.com/odyssey-erp/cashbook/internal/platform/cache"
	"github.com/odyssey-erp/cashbook/internal/reports"
	reportshttp "github.com/odyssey-erp/cashbook/internal/reports/http"
	"github.com/odyssey-erp/cashbook/jobs"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(cli.RunJobs(os.Args[2:], os.Stdout))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	docs := app.NewDocstoreClient(cfg)
	storage, err := app.OpenLedgerStorage(ctx, cfg, docs, logger)
	if err != nil {
		logger.Error("open ledger storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer storage.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	var reportService *reports.Service
	notifiers := []ledger.Notifier{
		events.Func(func(ctx context.Context, change ledger.Change) { reportService.LedgerChanged(ctx, change) }),
		metrics,
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		notifiers = append(notifiers, publisher)
	}

	var (
		jobClient *jobs.Client
		inspector *asynq.Inspector
	)
	if cfg.JobsEnabled && redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err = jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = jobClient.Close() }()
		inspector = asynq.NewInspector(redisOpts)
		defer func() { _ = inspector.Close() }()
		// The worker reloads from shared storage, which the memory backend lacks.
		if cfg.StorageBackend != app.StorageMemory {
			notifiers = append(notifiers, jobs.NewWarmupNotifier(jobClient, logger))
		}
	}

	ledgerService := ledger.NewService(ledger.Options{
		Repository:     storage.Repository,
		Notifier:       events.Join(notifiers...),
		StrictAccounts: cfg.LedgerStrictAccounts,
		Logger:         logger,
	})
	reportService = reports.NewService(ledgerService, reportCache, logger)

	if err := ledgerService.Load(ctx); err != nil {
		logger.Error("load ledger", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.SeedDemo {
		seeded, err := ledgerService.SeedDemo(ctx)
		if err != nil {
			logger.Error("seed demo data", slog.Any("error", err))
			os.Exit(1)
		}
		if seeded {
			logger.Info("seeded demo ledger")
		}
	}

	if err := reportCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("report cache version bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("report cache invalidation listener", slog.Any("error", err))
	}

	datasheetService := datasheet.NewService(docs, logger)
	if docs != nil {
		go func() {
			syncCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if _, err := datasheetService.Sync(syncCtx); err != nil {
				logger.Warn("initial datasheet sync", slog.Any("error", err))
			}
		}()
	}

	healthChecks := map[string]app.HealthCheck{}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if storage.Pool != nil {
		healthChecks["postgres"] = storage.Pool.Ping
	}
	if docs != nil {
		healthChecks["docstore"] = docs.Ping
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerhttp.NewHandler(logger, ledgerService),
		ReportHandler:    reportshttp.NewHandler(logger, reportService),
		DatasheetHandler: datasheethttp.NewHandler(logger, datasheetService),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		Metrics:          metrics,
		HealthChecks:     healthChecks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("storage", cfg.StorageBackend))
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
	fmt.Fprintln(os.Stderr, "cashbook stopped")
}
