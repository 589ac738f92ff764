package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const idempotencyModule = "inventory"

// CreateTransaction books a new adjustment against the product owning the sku
// and moves its stock by qty in the same store transaction.
func (s *Service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (detail TransactionDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.CreateTransaction",
		trace.WithAttributes(attribute.String("sku", input.SKU), attribute.Int64("qty", input.Qty)))
	defer func() {
		s.observe("create", err)
		endSpan(span, err)
	}()

	input.SKU = strings.TrimSpace(input.SKU)
	if input.SKU == "" {
		return TransactionDetail{}, fmt.Errorf("%w: sku is required", ErrValidation)
	}
	if err := validateQty(input.Qty); err != nil {
		return TransactionDetail{}, err
	}

	key := ""
	if input.IdempotencyKey != "" {
		if s.idempotency == nil {
			return TransactionDetail{}, fmt.Errorf("%w: idempotency keys are not supported", ErrValidation)
		}
		key = "transaction:" + input.IdempotencyKey
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return TransactionDetail{}, fmt.Errorf("%w: key %q", ErrDuplicateRequest, input.IdempotencyKey)
			}
			return TransactionDetail{}, storeError("reserve idempotency key", err)
		}
	}

	var product Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var (
			exists bool
			err    error
		)
		product, exists, err = tx.FindProductBySKUForUpdate(ctx, input.SKU)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: sku %q", ErrProductNotFound, input.SKU)
		}
		if product.Stock+input.Qty < 0 {
			return insufficient(product, input.Qty)
		}
		if err := checkCapacity(product, input.Qty); err != nil {
			return err
		}
		amount := Amount(product.Price, input.Qty)
		if err := validateAmount(amount); err != nil {
			return err
		}
		entry, err := tx.RecordTransaction(ctx, product.ID, input.Qty, amount)
		if err != nil {
			return err
		}
		if input.Qty != 0 {
			product, err = tx.AdjustStock(ctx, product.ID, input.Qty)
			if err != nil {
				return err
			}
		}
		detail = TransactionDetail{Transaction: entry, SKU: product.SKU, Title: product.Title}
		return nil
	})
	if err != nil {
		if key != "" {
			if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.Warn("release idempotency key failed", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return TransactionDetail{}, err
	}

	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "transaction:create",
		Entity:   "adjustment_transaction",
		EntityID: strconv.FormatInt(detail.ID, 10),
		Meta:     map[string]any{"product_id": product.ID, "qty": detail.Qty, "amount": detail.Amount.StringFixed(2)},
	}, &TransactionEvent{
		Type:          EventTransactionCreated,
		TransactionID: detail.ID,
		ProductID:     product.ID,
		SKU:           product.SKU,
		Qty:           detail.Qty,
		Amount:        detail.Amount,
		Stock:         []StockChange{{ProductID: product.ID, Delta: input.Qty, Stock: product.Stock}},
		ActorID:       input.ActorID,
	})
	return detail, nil
}

// UpdateTransaction corrects the qty of an entry and may move it to another
// product. Only the marginal delta against the entry's previous contribution
// is applied to stock.
func (s *Service) UpdateTransaction(ctx context.Context, id int64, input UpdateTransactionInput) (detail TransactionDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.UpdateTransaction",
		trace.WithAttributes(attribute.Int64("transaction_id", id), attribute.Int64("qty", input.Qty)))
	defer func() {
		s.observe("update", err)
		endSpan(span, err)
	}()

	if id <= 0 {
		return TransactionDetail{}, fmt.Errorf("%w: transaction id required", ErrValidation)
	}
	if err := validateQty(input.Qty); err != nil {
		return TransactionDetail{}, err
	}
	input.SKU = strings.TrimSpace(input.SKU)

	var (
		previous Transaction
		changes  []StockChange
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		changes = changes[:0]
		var err error
		previous, err = tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}

		targetID := previous.ProductID
		if input.SKU != "" {
			target, exists, err := tx.FindProductBySKU(ctx, input.SKU, 0)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: sku %q", ErrProductNotFound, input.SKU)
			}
			targetID = target.ID
		}

		locked, err := lockProducts(ctx, tx, previous.ProductID, targetID)
		if err != nil {
			return err
		}
		oldProduct, newProduct := locked[previous.ProductID], locked[targetID]
		amount := Amount(newProduct.Price, input.Qty)
		if err := validateAmount(amount); err != nil {
			return err
		}

		if oldProduct.ID == newProduct.ID {
			delta := input.Qty - previous.Qty
			if newProduct.Stock+delta < 0 {
				return insufficient(newProduct, delta)
			}
			if err := checkCapacity(newProduct, delta); err != nil {
				return err
			}
			if delta != 0 {
				if newProduct, err = tx.AdjustStock(ctx, newProduct.ID, delta); err != nil {
					return err
				}
			}
			changes = append(changes, StockChange{ProductID: newProduct.ID, Delta: delta, Stock: newProduct.Stock})
		} else {
			if newProduct.Stock+input.Qty < 0 {
				return insufficient(newProduct, input.Qty)
			}
			if err := checkCapacity(newProduct, input.Qty); err != nil {
				return err
			}
			// A negative result here means the old product's stock already
			// disagrees with its history; refuse rather than clamp.
			if oldProduct.Stock-previous.Qty < 0 {
				return insufficient(oldProduct, -previous.Qty)
			}
			if err := checkCapacity(oldProduct, -previous.Qty); err != nil {
				return err
			}
			if previous.Qty != 0 {
				if oldProduct, err = tx.AdjustStock(ctx, oldProduct.ID, -previous.Qty); err != nil {
					return err
				}
			}
			if input.Qty != 0 {
				if newProduct, err = tx.AdjustStock(ctx, newProduct.ID, input.Qty); err != nil {
					return err
				}
			}
			changes = append(changes,
				StockChange{ProductID: oldProduct.ID, Delta: -previous.Qty, Stock: oldProduct.Stock},
				StockChange{ProductID: newProduct.ID, Delta: input.Qty, Stock: newProduct.Stock},
			)
		}

		entry, err := tx.UpdateTransactionEntry(ctx, id, newProduct.ID, input.Qty, amount)
		if err != nil {
			return err
		}
		detail = TransactionDetail{Transaction: entry, SKU: newProduct.SKU, Title: newProduct.Title}
		return nil
	})
	if err != nil {
		return TransactionDetail{}, err
	}

	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "transaction:update",
		Entity:   "adjustment_transaction",
		EntityID: strconv.FormatInt(id, 10),
		Meta: map[string]any{
			"from_product_id": previous.ProductID,
			"to_product_id":   detail.ProductID,
			"from_qty":        previous.Qty,
			"to_qty":          detail.Qty,
			"amount":          detail.Amount.StringFixed(2),
		},
	}, &TransactionEvent{
		Type:          EventTransactionUpdated,
		TransactionID: id,
		ProductID:     detail.ProductID,
		SKU:           detail.SKU,
		Qty:           detail.Qty,
		Amount:        detail.Amount,
		Stock:         changes,
		ActorID:       input.ActorID,
	})
	return detail, nil
}

// DeleteTransaction hides an entry from the ledger. Its stock contribution is
// kept; callers wanting a reversal update the entry to qty 0 first.
func (s *Service) DeleteTransaction(ctx context.Context, id int64, actorID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.DeleteTransaction", trace.WithAttributes(attribute.Int64("transaction_id", id)))
	defer func() {
		s.observe("delete", err)
		endSpan(span, err)
	}()

	if id <= 0 {
		return fmt.Errorf("%w: transaction id required", ErrValidation)
	}
	var entry Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return tx.SoftDeleteTransaction(ctx, id)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "transaction:delete",
		Entity:   "adjustment_transaction",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"product_id": entry.ProductID, "qty": entry.Qty},
	}, &TransactionEvent{
		Type:          EventTransactionDeleted,
		TransactionID: id,
		ProductID:     entry.ProductID,
		Qty:           entry.Qty,
		Amount:        entry.Amount,
		ActorID:       actorID,
	})
	return nil
}

// lockProducts row-locks the given products in ascending id order so two
// requests touching the same pair cannot deadlock.
func lockProducts(ctx context.Context, tx TxRepository, ids ...int64) (map[int64]Product, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	locked := make(map[int64]Product, len(ordered))
	for _, id := range ordered {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = p
	}
	return locked, nil
}

func insufficient(p Product, delta int64) error {
	return fmt.Errorf("%w: sku %q has %d in stock, adjustment of %d would leave %d",
		ErrInsufficientStock, p.SKU, p.Stock, delta, p.Stock+delta)
}
