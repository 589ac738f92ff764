package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stokaro/ptah/migration/migrator"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	provider, err := migrator.NewFSMigrationProvider(Migrations())
	require.NoError(t, err)

	migrations := provider.Migrations()
	require.Len(t, migrations, 4)
	for i, m := range migrations {
		require.Equal(t, i+1, m.Version)
	}

	files, err := fs.Glob(Migrations(), "*.up.sql")
	require.NoError(t, err)
	require.Len(t, files, 4)
}

func TestErrorClassification(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: CodeSerializationFailure})
	require.True(t, IsRetryable(serialization))
	require.True(t, IsRetryable(&pgconn.PgError{Code: CodeDeadlockDetected}))
	require.False(t, IsRetryable(&pgconn.PgError{Code: CodeUniqueViolation}))
	require.False(t, IsRetryable(errors.New("boom")))

	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation})))
	require.Equal(t, CodeNumericOutOfRange, ErrorCode(fmt.Errorf("update: %w", &pgconn.PgError{Code: CodeNumericOutOfRange})))
	require.Equal(t, "", ErrorCode(nil))
}

func TestDefaultBackoffIsJitteredAndCapped(t *testing.T) {
	bounds := map[int][2]time.Duration{
		1:  {5 * time.Millisecond, 10 * time.Millisecond},
		2:  {10 * time.Millisecond, 20 * time.Millisecond},
		3:  {20 * time.Millisecond, 40 * time.Millisecond},
		6:  {125 * time.Millisecond, 250 * time.Millisecond},
		64: {125 * time.Millisecond, 250 * time.Millisecond},
		0:  {125 * time.Millisecond, 250 * time.Millisecond},
	}
	for attempt, b := range bounds {
		seen := map[time.Duration]bool{}
		for range 50 {
			d := DefaultBackoff(attempt)
			require.GreaterOrEqual(t, d, b[0], "attempt %d", attempt)
			require.Less(t, d, b[1], "attempt %d", attempt)
			seen[d] = true
		}
		require.Greater(t, len(seen), 1, "attempt %d should be jittered", attempt)
	}
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	require.Less(t, time.Since(start), time.Second)
	require.ErrorIs(t, sleepCtx(ctx, 0), context.Canceled)
}
