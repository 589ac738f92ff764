package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Product is an inventory item with its derived stock counter.
type Product struct {
	ID          int64
	SKU         string
	Title       string
	Image       string
	Description *string
	Price       decimal.Decimal
	Stock       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Transaction is one adjustment ledger entry. Amount is frozen at write time.
type Transaction struct {
	ID        int64
	ProductID int64
	Qty       int64
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// TransactionDetail is a ledger entry enriched with its product's identity.
type TransactionDetail struct {
	Transaction
	SKU   string
	Title string
}

// ProductFields are the editable display attributes of a product.
type ProductFields struct {
	SKU         string
	Title       string
	Image       string
	Description *string
	Price       decimal.Decimal
}

// ProductInput describes a product to create with its opening stock.
type ProductInput struct {
	ProductFields
	Stock   int64
	ActorID int64
}

// CatalogProduct is one entry of an external catalog feed.
type CatalogProduct struct {
	ProductFields
	Stock int64
}

// UpsertOutcome reports what a catalog upsert did.
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "created"
	UpsertUpdated UpsertOutcome = "updated"
)

// CreateTransactionInput requests a new ledger entry against the product owning SKU.
type CreateTransactionInput struct {
	SKU            string
	Qty            int64
	IdempotencyKey string
	ActorID        int64
}

// UpdateTransactionInput corrects an entry. An empty SKU keeps the current product.
type UpdateTransactionInput struct {
	SKU     string
	Qty     int64
	ActorID int64
}

// ListFilter selects one page of a listing.
type ListFilter struct {
	Page    int
	Limit   int
	Keyword string
}

// Page is one page of a listing with totals computed under the same filter.
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	TotalPages int
}

// MaxQuantity bounds the magnitude of a single adjustment qty and the stock
// level any product may reach.
const MaxQuantity int64 = 1_000_000_000_000

// Exclusive bounds of the price and amount NUMERIC columns.
var (
	maxPrice  = decimal.New(1, 10)
	maxAmount = decimal.New(1, 12)
)

// Listing limits.
const (
	DefaultProductLimit     = 8
	DefaultTransactionLimit = 10
	MaxListLimit            = 100
)

var (
	// ErrValidation marks malformed input rejected before reaching the ledger.
	ErrValidation = shared.ErrValidation
	// ErrProductNotFound indicates no active product matches the reference.
	ErrProductNotFound = shared.NewKindError(shared.ErrNotFound, "product not found")
	// ErrTransactionNotFound indicates no active ledger entry matches the reference.
	ErrTransactionNotFound = shared.NewKindError(shared.ErrNotFound, "transaction not found")
	// ErrDuplicateSKU indicates an active product already owns the sku.
	ErrDuplicateSKU = shared.NewKindError(shared.ErrConflict, "sku already exists")
	// ErrInsufficientStock triggered when an adjustment would drive stock below zero.
	ErrInsufficientStock = shared.NewKindError(shared.ErrRuleViolation, "insufficient stock")
	// ErrDuplicateRequest indicates the idempotency key was already processed.
	ErrDuplicateRequest = shared.NewKindError(shared.ErrConflict, "duplicate request")
	// ErrStore wraps persistence failures.
	ErrStore = errors.New("inventory: store failure")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func validateQty(qty int64) error {
	if qty < -MaxQuantity || qty > MaxQuantity {
		return fmt.Errorf("%w: qty must be between %d and %d", ErrValidation, -MaxQuantity, MaxQuantity)
	}
	return nil
}

func validateStock(stock int64) error {
	if stock < 0 || stock > MaxQuantity {
		return fmt.Errorf("%w: stock must be between 0 and %d", ErrValidation, MaxQuantity)
	}
	return nil
}

// checkCapacity rejects a delta that would lift p above MaxQuantity. Both
// operands stay within a few MaxQuantity so the sum cannot overflow.
func checkCapacity(p Product, delta int64) error {
	if delta > 0 && p.Stock+delta > MaxQuantity {
		return fmt.Errorf("%w: stock of %s would exceed %d", ErrValidation, p.SKU, MaxQuantity)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: amount %s is out of range", ErrValidation, amount.StringFixed(2))
	}
	return nil
}

// Amount computes the frozen monetary value of an adjustment.
func Amount(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty)).Round(2)
}
