package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/platform/events"
	"github.com/odyssey-erp/stockledger/internal/platform/tracing"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
)

// Deps holds the process-wide collaborators shared by the API server, the
// worker and the CLI.
type Deps struct {
	Config      *Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	JobMetrics  *jobmetrics.Metrics
	Events      *events.Publisher
	Tracer      trace.TracerProvider
	Idempotency *shared.IdempotencyStore
	QueryCache  *inventory.QueryCache
	Inventory   *inventory.Service
	Importer    *catalog.Importer
	// Jobs and Inspector are nil when REDIS_ADDR is empty.
	Jobs      *jobs.Client
	Inspector *asynq.Inspector

	closers []func(context.Context) error
}

// Build connects to every backing service named by cfg and assembles the
// inventory service and the catalog importer on top of them.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger}

	tp, shutdown, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		return nil, err
	}
	d.Tracer = tp
	d.closers = append(d.closers, shutdown)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	d.Pool = pool
	d.closers = append(d.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	if redisClient != nil {
		d.Redis = redisClient
		d.closers = append(d.closers, func(context.Context) error { return redisClient.Close() })

		opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		d.Jobs = jobs.NewClient(opts, cfg.CatalogSourceURL)
		d.Inspector = asynq.NewInspector(opts)
		d.closers = append(d.closers,
			func(context.Context) error { return d.Jobs.Close() },
			func(context.Context) error { return d.Inspector.Close() },
		)
	} else {
		logger.Warn("redis disabled: query cache, import lock and job queue are off")
	}

	d.Metrics = observability.NewMetrics()
	d.JobMetrics = jobmetrics.NewMetrics(d.Metrics.Registerer())

	d.Events = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	d.closers = append(d.closers, func(context.Context) error { return d.Events.Close() })

	d.Idempotency = shared.NewIdempotencyStore(pool)
	d.QueryCache = inventory.NewQueryCache(d.Redis, cfg.QueryCacheTTL, logger)

	repo := inventory.NewRepository(pool, db.TxOptions{
		MaxAttempts: cfg.DBTxMaxAttempts,
		OnRetry: func(attempt int, err error) {
			d.Metrics.ObserveTxRetry()
			logger.Warn("retrying serialization failure", slog.Int("attempt", attempt), slog.Any("error", err))
		},
	})
	svcCfg := inventory.ServiceConfig{
		Cache:   d.QueryCache,
		Metrics: d.Metrics,
		Tracer:  tp.Tracer("github.com/odyssey-erp/stockledger/internal/inventory"),
		Logger:  logger,
	}
	if d.Events.Enabled() {
		svcCfg.Events = d.Events
	}
	d.Inventory = inventory.NewService(repo, shared.NewAuditLogger(pool), d.Idempotency, svcCfg)

	d.Importer = catalog.NewImporter(
		catalog.NewClient(cfg.CatalogSourceURL, cfg.CatalogTimeout),
		d.Inventory,
		catalog.ImporterConfig{
			Locker:  shared.NewLocker(d.Redis),
			Metrics: d.JobMetrics,
			Logger:  logger,
			LockTTL: 15 * time.Minute,
		},
	)
	return d, nil
}

// ImportEnqueuer returns the job client as the inventory handler's import
// hook, or nil when no queue is configured.
func (d *Deps) ImportEnqueuer() inventory.ImportEnqueuer {
	if d.Jobs == nil {
		return nil
	}
	return d.Jobs
}

// JobHandler exposes queue health for the router.
func (d *Deps) JobHandler() *jobs.Handler {
	if d.Inspector == nil {
		return jobs.NewHandler(nil, d.Logger)
	}
	return jobs.NewHandler(d.Inspector, d.Logger)
}

// HealthChecks lists the probes served on /healthz.
func (d *Deps) HealthChecks() map[string]HealthCheck {
	return map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return d.Pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return cache.Ping(ctx, d.Redis) },
	}
}

// Close releases resources in reverse order of acquisition.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: close: %w", err)
	}
	return nil
}
