package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger event types.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventProductDeleted     = "product.deleted"
)

// StockChange records the stock level a committed operation left on a product.
type StockChange struct {
	ProductID int64 `json:"product_id"`
	Delta     int64 `json:"delta"`
	Stock     int64 `json:"stock"`
}

// TransactionEvent is published after a ledger mutation commits.
type TransactionEvent struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	ProductID     int64           `json:"product_id"`
	SKU           string          `json:"sku,omitempty"`
	Qty           int64           `json:"qty"`
	Amount        decimal.Decimal `json:"amount"`
	Stock         []StockChange   `json:"stock,omitempty"`
	ActorID       int64           `json:"actor_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
