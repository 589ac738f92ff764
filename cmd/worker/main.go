package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/jobs"
)

func main() {
	if app.SkipStartup("worker") {
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
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build dependencies", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			logger.Warn("close dependencies", slog.Any("error", err))
		}
	}()

	go deps.QueryCache.Listen(ctx)

	importJob := jobs.NewCatalogImportJob(deps.Importer, logger, deps.JobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(deps.Idempotency, logger, deps.JobMetrics)

	var cron []jobs.CronRegistration
	if cfg.CatalogImportCron != "" {
		task, err := jobs.NewScheduledCatalogImportTask()
		if err != nil {
			logger.Error("build catalog import task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.CatalogImportCron, Task: task})
	}
	if cfg.IdempotencyCleanupCron != "" {
		task, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
		if err != nil {
			logger.Error("build idempotency cleanup task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.IdempotencyCleanupCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogImport, Handler: importJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
