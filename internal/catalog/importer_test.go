package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type staticFeed struct {
	products []FeedProduct
	err      error
	block    chan struct{}
}

func (f *staticFeed) Fetch(ctx context.Context, _ string) ([]FeedProduct, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.products, f.err
}

type memoryUpserter struct {
	mu    sync.Mutex
	items map[string]inventory.CatalogProduct
	fail  map[string]error
}

func (u *memoryUpserter) UpsertCatalogProduct(_ context.Context, item inventory.CatalogProduct) (inventory.Product, inventory.UpsertOutcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.fail[item.SKU]; err != nil {
		return inventory.Product{}, "", err
	}
	if u.items == nil {
		u.items = make(map[string]inventory.CatalogProduct)
	}
	_, exists := u.items[item.SKU]
	u.items[item.SKU] = item
	if exists {
		return inventory.Product{SKU: item.SKU}, inventory.UpsertUpdated, nil
	}
	return inventory.Product{SKU: item.SKU, Stock: item.Stock}, inventory.UpsertCreated, nil
}

func feedProduct(sku, price string, stock int64) FeedProduct {
	return FeedProduct{Title: "Item " + sku, SKU: sku, Price: decimal.RequireFromString(price), Stock: stock, Thumbnail: "t.png"}
}

func TestImporterCountsOutcomes(t *testing.T) {
	upserter := &memoryUpserter{fail: map[string]error{
		"BAD-TITLE": inventory.ErrValidation,
	}}
	feed := &staticFeed{products: []FeedProduct{
		feedProduct("A", "1.50", 3),
		feedProduct("B", "2", 0),
		feedProduct("", "1", 1),
		feedProduct("NEG-PRICE", "-1", 1),
		feedProduct("NEG-STOCK", "1", -4),
		feedProduct("BAD-TITLE", "1", 1),
	}}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	importer := NewImporter(feed, upserter, ImporterConfig{Metrics: metrics})

	report, err := importer.Run(context.Background(), "run-1", "")
	require.NoError(t, err)
	require.Equal(t, 6, report.Fetched)
	require.Equal(t, 2, report.Created)
	require.Equal(t, 4, report.Skipped)
	require.Zero(t, report.Failed)
	require.Equal(t, "t.png", upserter.items["A"].Image)
	require.EqualValues(t, 3, upserter.items["A"].Stock)

	report, err = importer.Run(context.Background(), "run-2", "")
	require.NoError(t, err)
	require.Equal(t, 2, report.Updated)

	require.Equal(t, 2.0, importedCount(t, reg, OutcomeCreated))
	require.Equal(t, 2.0, importedCount(t, reg, OutcomeUpdated))
	require.Equal(t, 8.0, importedCount(t, reg, OutcomeSkipped))
}

func importedCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "stockledger_catalog_products_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestImporterReportsStoreFailures(t *testing.T) {
	upserter := &memoryUpserter{fail: map[string]error{"B": errors.New("connection reset")}}
	feed := &staticFeed{products: []FeedProduct{feedProduct("A", "1", 1), feedProduct("B", "1", 1)}}

	report, err := NewImporter(feed, upserter, ImporterConfig{}).Run(context.Background(), "run", "")
	require.ErrorContains(t, err, "1 of 2 products failed")
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Failed)
}

func TestImporterFeedError(t *testing.T) {
	feed := &staticFeed{err: errors.New("feed down")}
	_, err := NewImporter(feed, &memoryUpserter{}, ImporterConfig{}).Run(context.Background(), "run", "")
	require.ErrorContains(t, err, "feed down")
}

func TestImporterHoldsExclusiveLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := shared.NewLocker(client)

	feed := &staticFeed{products: []FeedProduct{feedProduct("A", "1", 1)}, block: make(chan struct{})}
	importer := NewImporter(feed, &memoryUpserter{}, ImporterConfig{Locker: locker, LockTTL: time.Minute})

	done := make(chan error, 1)
	go func() {
		_, err := importer.Run(context.Background(), "first", "")
		done <- err
	}()
	require.Eventually(t, func() bool { return mr.Exists(shared.CatalogImportLockKey) }, time.Second, 5*time.Millisecond)

	_, err := importer.Run(context.Background(), "second", "")
	require.ErrorIs(t, err, shared.ErrLockHeld)

	close(feed.block)
	require.NoError(t, <-done)
	require.False(t, mr.Exists(shared.CatalogImportLockKey), "lock released after the run")

	_, err = importer.Run(context.Background(), "third", "")
	require.NoError(t, err)
}
