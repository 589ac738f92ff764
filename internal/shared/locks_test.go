package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, CatalogImportLockKey, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, CatalogImportLockKey, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(CatalogImportLockKey))

	release, err = locker.Acquire(ctx, CatalogImportLockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestLockerReleaseKeepsForeignOwner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	other, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
	require.True(t, mr.Exists("k"))
	require.NoError(t, other(ctx))
}

func TestNilLockerGrants(t *testing.T) {
	release, err := NewLocker(nil).Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 8, 17)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 8, p.Offset())

	require.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	require.Equal(t, 8, ClampLimit(0, 8, 100))
	require.Equal(t, 100, ClampLimit(500, 8, 100))
	require.Equal(t, 15, ClampLimit(15, 8, 100))
}
