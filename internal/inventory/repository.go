package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// Repository persists products and the adjustment ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository. opts tunes the isolation level and the
// conflict retry budget of WithTx.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

// TxRepository exposes the product store and the ledger bound to one store
// transaction. Every mutating method treats soft-deleted rows as absent.
type TxRepository interface {
	CreateProduct(ctx context.Context, fields ProductFields) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	FindProductBySKU(ctx context.Context, sku string, excludeID int64) (Product, bool, error)
	FindProductBySKUForUpdate(ctx context.Context, sku string) (Product, bool, error)
	UpdateProductFields(ctx context.Context, id int64, fields ProductFields) (Product, error)
	AdjustStock(ctx context.Context, id, delta int64) (Product, error)
	SoftDeleteProduct(ctx context.Context, id int64) error

	RecordTransaction(ctx context.Context, productID, qty int64, amount decimal.Decimal) (Transaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error)
	UpdateTransactionEntry(ctx context.Context, id, productID, qty int64, amount decimal.Decimal) (Transaction, error)
	SoftDeleteTransaction(ctx context.Context, id int64) error
	SoftDeleteTransactionsByProduct(ctx context.Context, productID int64) (int64, error)
}

type txRepository struct {
	queries
}

var errRepositoryNotInitialised = errors.New("inventory repository not initialised")

// WithTx executes the callback inside a repeatable-read transaction. The
// callback is replayed when the store reports a serialization conflict, so it
// must not hold state across attempts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errRepositoryNotInitialised
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{queries{q: tx}})
	})
}

// ListProducts returns one page of active products and the filtered total.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, errRepositoryNotInitialised
	}
	return queries{q: r.pool}.listProducts(ctx, filter)
}

// GetProduct loads one active product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	if r == nil || r.pool == nil {
		return Product{}, errRepositoryNotInitialised
	}
	return queries{q: r.pool}.GetProduct(ctx, id)
}

// ListTransactions returns one page of active ledger entries joined with their product.
func (r *Repository) ListTransactions(ctx context.Context, filter ListFilter) ([]TransactionDetail, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, errRepositoryNotInitialised
	}
	return queries{q: r.pool}.listTransactions(ctx, filter)
}

// GetTransactionDetail loads one active ledger entry of an active product.
func (r *Repository) GetTransactionDetail(ctx context.Context, id int64) (TransactionDetail, error) {
	if r == nil || r.pool == nil {
		return TransactionDetail{}, errRepositoryNotInitialised
	}
	return queries{q: r.pool}.getTransactionDetail(ctx, id)
}

// queries holds the SQL shared by pooled reads and transactional writes.
type queries struct {
	q db.Querier
}

// writeError maps store rejections of a write that stem from the values
// written to domain errors; anything else is a store failure.
func writeError(op string, err error) error {
	switch db.ErrorCode(err) {
	case db.CodeCheckViolation:
		return fmt.Errorf("%w: %s: constraint violated", ErrValidation, op)
	case db.CodeNumericOutOfRange:
		return fmt.Errorf("%w: %s: value out of range", ErrValidation, op)
	}
	return storeError(op, err)
}

// likePattern turns a keyword into a case-insensitive substring pattern.
func likePattern(keyword string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(keyword)
	return "%" + escaped + "%"
}

func offset(filter ListFilter) int {
	if filter.Page <= 1 {
		return 0
	}
	return (filter.Page - 1) * filter.Limit
}
