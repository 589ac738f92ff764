package inventory

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// scriptedRow answers Scan with err, or stores exists into a single *bool.
type scriptedRow struct {
	err    error
	exists bool
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 1 {
		if b, ok := dest[0].(*bool); ok {
			*b = r.exists
		}
	}
	return nil
}

// scriptedQuerier hands out rows in order. Exec and Query are not used by the
// statements under test.
type scriptedQuerier struct {
	db.Querier
	rows []pgx.Row
}

func (q *scriptedQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

func queriesReturning(rows ...pgx.Row) queries {
	return queries{q: &scriptedQuerier{rows: rows}}
}

func TestLikePattern(t *testing.T) {
	cases := map[string]string{
		"":          `%%`,
		"widget":    `%widget%`,
		"50%_off":   `%50\%\_off%`,
		`a\b`:       `%a\\b%`,
		`\%`:        `%\\\%%`,
		"__init__":  `%\_\_init\_\_%`,
		"Café Noir": `%Café Noir%`,
	}
	for keyword, want := range cases {
		t.Run(keyword, func(t *testing.T) {
			assert.Equal(t, want, likePattern(keyword))
		})
	}
}

func TestWriteErrorMapping(t *testing.T) {
	outOfRange := writeError("insert transaction", &pgconn.PgError{Code: db.CodeNumericOutOfRange, Message: "integer out of range"})
	require.ErrorIs(t, outOfRange, ErrValidation)
	require.NotErrorIs(t, outOfRange, ErrStore)
	category, status := httpx.Classify(outOfRange)
	assert.Equal(t, httpx.CategoryClientError, category)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.NotContains(t, outOfRange.Error(), "integer out of range")

	check := writeError("insert product", &pgconn.PgError{Code: db.CodeCheckViolation})
	require.ErrorIs(t, check, ErrValidation)

	other := writeError("insert product", errors.New("conn reset"))
	require.ErrorIs(t, other, ErrStore)
	category, _ = httpx.Classify(other)
	assert.Equal(t, httpx.CategoryServerError, category)
}

func TestAdjustStockMapsStoreRejections(t *testing.T) {
	ctx := context.Background()

	_, err := queriesReturning(scriptedRow{err: &pgconn.PgError{Code: db.CodeCheckViolation, ConstraintName: "products_stock_check"}}).
		AdjustStock(ctx, 1, -5)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrRuleViolation)

	_, err = queriesReturning(scriptedRow{err: &pgconn.PgError{Code: db.CodeNumericOutOfRange}}).
		AdjustStock(ctx, 1, MaxQuantity)
	require.ErrorIs(t, err, ErrValidation)

	_, err = queriesReturning(scriptedRow{err: pgx.ErrNoRows}, scriptedRow{exists: true}).
		AdjustStock(ctx, 1, -5)
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = queriesReturning(scriptedRow{err: pgx.ErrNoRows}, scriptedRow{exists: false}).
		AdjustStock(ctx, 1, -5)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = queriesReturning(scriptedRow{err: errors.New("conn reset")}).AdjustStock(ctx, 1, 1)
	require.ErrorIs(t, err, ErrStore)
}

func TestLedgerWritesMapOutOfRange(t *testing.T) {
	ctx := context.Background()
	rangeErr := &pgconn.PgError{Code: db.CodeNumericOutOfRange}

	_, err := queriesReturning(scriptedRow{err: rangeErr}).
		RecordTransaction(ctx, 1, 3_000_000_000, decimal.RequireFromString("1e12"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = queriesReturning(scriptedRow{err: rangeErr}).
		UpdateTransactionEntry(ctx, 1, 1, 3_000_000_000, decimal.RequireFromString("1e12"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = queriesReturning(scriptedRow{err: pgx.ErrNoRows}).
		UpdateTransactionEntry(ctx, 1, 1, 1, decimal.Zero)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}
