package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashbook/internal/app"
	"github.com/odyssey-erp/cashbook/internal/datasheet"
	jobmetrics "github.com/odyssey-erp/cashbook/internal/jobs"
	"github.com/odyssey-erp/cashbook/internal/ledger"
	"github.com/odyssey-erp/cashbook/internal/platform/cache"
	"github.com/odyssey-erp/cashbook/internal/reports"
	"github.com/odyssey-erp/cashbook/jobs"
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

	docs := app.NewDocstoreClient(cfg)
	storage, err := app.OpenLedgerStorage(ctx, cfg, docs, logger)
	if err != nil {
		logger.Error("open ledger storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer storage.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerService := ledger.NewService(ledger.Options{
		Repository:     storage.Repository,
		StrictAccounts: cfg.LedgerStrictAccounts,
		Logger:         logger,
	})
	reportService := reports.NewService(ledgerService, reports.NewCache(redisClient, cfg.ReportCacheTTL), logger)
	datasheetService := datasheet.NewService(docs, logger)

	metrics := jobmetrics.NewMetrics(nil)
	syncJob := jobs.NewDatasheetSyncJob(datasheetService, logger, metrics)
	warmupJob := jobs.NewReportWarmupJob(ledgerService, reportService, logger, metrics)

	syncTask, err := jobs.NewDatasheetSyncTask(jobs.DatasheetSyncPayload{})
	if err != nil {
		logger.Error("build datasheet sync task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportWarmupTask("")
	if err != nil {
		logger.Error("build report warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if docs != nil {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.DatasheetSyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	cron = append(cron, jobs.CronRegistration{Spec: cfg.ReportWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDatasheetSync, Handler: syncJob.Handle},
			{Type: jobs.TaskReportWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("storage", cfg.StorageBackend))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
