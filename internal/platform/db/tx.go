package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxAttempts bounds how many times a conflicting transaction is replayed.
const DefaultMaxAttempts = 3

// Replay delay bounds used by DefaultBackoff.
const (
	retryBaseDelay = 10 * time.Millisecond
	retryMaxDelay  = 250 * time.Millisecond
)

// TxOptions tunes WithTx.
type TxOptions struct {
	IsoLevel    pgx.TxIsoLevel
	MaxAttempts int
	// OnRetry is called before each replay with the attempt that just failed.
	OnRetry func(attempt int, err error)
	// Backoff returns the pause before replaying after attempt failed.
	// Nil means DefaultBackoff.
	Backoff func(attempt int) time.Duration
}

// DefaultBackoff waits a random duration in [d/2, d) where d doubles from
// 10ms per failed attempt and is capped at 250ms. The jitter spreads replays
// of transactions that lost the same row lock.
func DefaultBackoff(attempt int) time.Duration {
	d := retryMaxDelay
	if attempt >= 1 && attempt <= 5 {
		d = min(retryBaseDelay<<(attempt-1), retryMaxDelay)
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)))
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx executes fn within a transaction using the RepeatableRead isolation level
// unless opts says otherwise. When the store aborts the transaction with a
// serialization failure or deadlock, fn is replayed from scratch on a fresh
// transaction, up to opts.MaxAttempts times. Any other error is returned as is.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts TxOptions, fn func(pgx.Tx) error) error {
	if opts.IsoLevel == "" {
		opts.IsoLevel = pgx.RepeatableRead
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}

	var err error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err = runTx(ctx, pool, opts.IsoLevel, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
		if waitErr := sleepCtx(ctx, opts.Backoff(attempt)); waitErr != nil {
			return waitErr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func runTx(ctx context.Context, pool *pgxpool.Pool, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// SQLSTATE codes the store layer cares about.
const (
	CodeNumericOutOfRange    = "22003"
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// IsRetryable reports whether err is a transaction conflict worth replaying.
func IsRetryable(err error) bool {
	code := ErrorCode(err)
	return code == CodeSerializationFailure || code == CodeDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return ErrorCode(err) == CodeUniqueViolation
}

// ErrorCode extracts the SQLSTATE from a postgres error, or "" when err is not one.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
