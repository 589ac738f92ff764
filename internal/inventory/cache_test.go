package inventory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	*memoryRepo
	listCalls atomic.Int32
	getCalls  atomic.Int32
}

func (r *countingRepo) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	r.listCalls.Add(1)
	return r.memoryRepo.ListProducts(ctx, filter)
}

func (r *countingRepo) GetTransactionDetail(ctx context.Context, id int64) (TransactionDetail, error) {
	r.getCalls.Add(1)
	return r.memoryRepo.GetTransactionDetail(ctx, id)
}

func newCachedService(t *testing.T) (*Service, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &countingRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, nil, nil, ServiceConfig{Cache: NewQueryCache(client, time.Minute, nil)})
	return svc, repo, mr
}

func TestQueryCacheServesUntilWrite(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{ProductFields: fields("X", "Widget", "100"), Stock: 5})
	require.NoError(t, err)

	first, err := svc.ListProducts(ctx, ListFilter{})
	require.NoError(t, err)
	second, err := svc.ListProducts(ctx, ListFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, repo.listCalls.Load())
	require.Equal(t, first.Total, second.Total)
	require.EqualValues(t, 5, second.Items[0].Stock)
	require.Equal(t, "100.00", second.Items[0].Price.StringFixed(2))

	_, err = svc.CreateTransaction(ctx, CreateTransactionInput{SKU: "X", Qty: -2})
	require.NoError(t, err)

	fresh, err := svc.ListProducts(ctx, ListFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 2, repo.listCalls.Load(), "commit bumps the cache version")
	require.EqualValues(t, 3, fresh.Items[0].Stock)
}

func TestQueryCacheDoesNotCacheMisses(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	_, err := svc.GetTransaction(ctx, 1)
	require.ErrorIs(t, err, ErrTransactionNotFound)
	_, err = svc.GetTransaction(ctx, 1)
	require.ErrorIs(t, err, ErrTransactionNotFound)
	require.EqualValues(t, 2, repo.getCalls.Load())
}

func TestQueryCacheOutageFallsBackToStore(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{ProductFields: fields("X", "Widget", "1")})
	require.NoError(t, err)
	mr.Close()

	page, err := svc.ListProducts(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.EqualValues(t, 1, repo.listCalls.Load())
}
