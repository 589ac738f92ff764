package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Feed supplies catalog products.
type Feed interface {
	Fetch(ctx context.Context, sourceURL string) ([]FeedProduct, error)
}

// Upserter applies one catalog product to the product store.
type Upserter interface {
	UpsertCatalogProduct(ctx context.Context, item inventory.CatalogProduct) (inventory.Product, inventory.UpsertOutcome, error)
}

// Import outcomes reported per product.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Report summarises one import run.
type Report struct {
	RunID    string        `json:"run_id"`
	Source   string        `json:"source"`
	Fetched  int           `json:"fetched"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Importer upserts feed products one store transaction at a time.
type Importer struct {
	feed     Feed
	upserter Upserter
	locker   *shared.Locker
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
	lockTTL  time.Duration
}

// ImporterConfig groups optional importer collaborators.
type ImporterConfig struct {
	Locker  *shared.Locker
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
	LockTTL time.Duration
}

// NewImporter builds an Importer.
func NewImporter(feed Feed, upserter Upserter, cfg ImporterConfig) *Importer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Importer{
		feed:     feed,
		upserter: upserter,
		locker:   cfg.Locker,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		lockTTL:  cfg.LockTTL,
	}
}

// Run imports the feed at sourceURL (or the feed's default). Only one run may
// hold the import lock; a concurrent call returns shared.ErrLockHeld. Products
// that fail validation are skipped; store failures are counted and reported
// as an error once the whole feed has been walked.
func (i *Importer) Run(ctx context.Context, runID, sourceURL string) (report Report, err error) {
	report = Report{RunID: runID, Source: sourceURL}
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	release, err := i.locker.Acquire(ctx, shared.CatalogImportLockKey, i.lockTTL)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			i.logger.Warn("release catalog import lock", slog.Any("error", err))
		}
	}()

	logger := i.logger.With(slog.String("run_id", runID))
	products, err := i.feed.Fetch(ctx, sourceURL)
	if err != nil {
		return report, err
	}
	report.Fetched = len(products)
	logger.Info("catalog feed fetched", slog.Int("products", len(products)))

	for _, fp := range products {
		if err := ctx.Err(); err != nil {
			return i.finish(report), err
		}
		item, ok := toCatalogProduct(fp)
		if !ok {
			report.Skipped++
			continue
		}
		_, outcome, err := i.upserter.UpsertCatalogProduct(ctx, item)
		switch {
		case err == nil && outcome == inventory.UpsertCreated:
			report.Created++
		case err == nil:
			report.Updated++
		case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrConflict):
			report.Skipped++
			logger.Debug("catalog product skipped", slog.String("sku", item.SKU), slog.Any("error", err))
		default:
			report.Failed++
			logger.Warn("catalog product failed", slog.String("sku", item.SKU), slog.Any("error", err))
		}
	}

	report = i.finish(report)
	logger.Info("catalog import finished",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		return report, fmt.Errorf("catalog: %d of %d products failed", report.Failed, report.Fetched)
	}
	return report, nil
}

func (i *Importer) finish(report Report) Report {
	i.metrics.AddImported(OutcomeCreated, report.Created)
	i.metrics.AddImported(OutcomeUpdated, report.Updated)
	i.metrics.AddImported(OutcomeSkipped, report.Skipped)
	i.metrics.AddImported(OutcomeFailed, report.Failed)
	return report
}

// toCatalogProduct maps a feed entry. Entries without a sku or with a negative
// price or stock are rejected.
func toCatalogProduct(fp FeedProduct) (inventory.CatalogProduct, bool) {
	sku := strings.TrimSpace(fp.SKU)
	if sku == "" || fp.Price.IsNegative() || fp.Stock < 0 {
		return inventory.CatalogProduct{}, false
	}
	item := inventory.CatalogProduct{
		ProductFields: inventory.ProductFields{
			SKU:   sku,
			Title: fp.Title,
			Image: fp.Image(),
			Price: fp.Price,
		},
		Stock: fp.Stock,
	}
	if desc := strings.TrimSpace(fp.Description); desc != "" {
		item.Description = &desc
	}
	return item, true
}
