package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, product_id, qty, amount, created_at, updated_at, deleted_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.ProductID, &t.Qty, &t.Amount, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	return t, err
}

func (q queries) RecordTransaction(ctx context.Context, productID, qty int64, amount decimal.Decimal) (Transaction, error) {
	row := q.q.QueryRow(ctx, `INSERT INTO adjustment_transactions (product_id, qty, amount)
VALUES ($1, $2, $3)
RETURNING `+transactionColumns, productID, qty, amount)
	t, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, writeError("insert transaction", err)
	}
	return t, nil
}

func (q queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return q.getTransaction(ctx, id, "")
}

func (q queries) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	return q.getTransaction(ctx, id, " FOR UPDATE")
}

func (q queries) getTransaction(ctx context.Context, id int64, lock string) (Transaction, error) {
	row := q.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM adjustment_transactions
WHERE id = $1 AND deleted_at IS NULL`+lock, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, storeError("get transaction", err)
	}
	return t, nil
}

func (q queries) UpdateTransactionEntry(ctx context.Context, id, productID, qty int64, amount decimal.Decimal) (Transaction, error) {
	row := q.q.QueryRow(ctx, `UPDATE adjustment_transactions
SET product_id = $2, qty = $3, amount = $4, updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
RETURNING `+transactionColumns, id, productID, qty, amount)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, writeError("update transaction", err)
	}
	return t, nil
}

func (q queries) SoftDeleteTransaction(ctx context.Context, id int64) error {
	tag, err := q.q.Exec(ctx, `UPDATE adjustment_transactions SET deleted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return storeError("soft delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (q queries) SoftDeleteTransactionsByProduct(ctx context.Context, productID int64) (int64, error) {
	tag, err := q.q.Exec(ctx, `UPDATE adjustment_transactions SET deleted_at = NOW(), updated_at = NOW()
WHERE product_id = $1 AND deleted_at IS NULL`, productID)
	if err != nil {
		return 0, storeError("cascade soft delete", err)
	}
	return tag.RowsAffected(), nil
}

const transactionDetailSelect = `SELECT t.id, t.product_id, t.qty, t.amount, t.created_at, t.updated_at, t.deleted_at, p.sku, p.title
FROM adjustment_transactions t
JOIN products p ON p.id = t.product_id
WHERE t.deleted_at IS NULL AND p.deleted_at IS NULL`

func scanTransactionDetail(row pgx.Row) (TransactionDetail, error) {
	var d TransactionDetail
	err := row.Scan(&d.ID, &d.ProductID, &d.Qty, &d.Amount, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt, &d.SKU, &d.Title)
	return d, err
}

func (q queries) getTransactionDetail(ctx context.Context, id int64) (TransactionDetail, error) {
	d, err := scanTransactionDetail(q.q.QueryRow(ctx, transactionDetailSelect+` AND t.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransactionDetail{}, ErrTransactionNotFound
		}
		return TransactionDetail{}, storeError("get transaction detail", err)
	}
	return d, nil
}

func (q queries) listTransactions(ctx context.Context, filter ListFilter) ([]TransactionDetail, int, error) {
	pattern := likePattern(filter.Keyword)
	var total int
	if err := q.q.QueryRow(ctx, `SELECT COUNT(*)
FROM adjustment_transactions t
JOIN products p ON p.id = t.product_id
WHERE t.deleted_at IS NULL AND p.deleted_at IS NULL AND (p.sku ILIKE $1 OR p.title ILIKE $1)`, pattern).Scan(&total); err != nil {
		return nil, 0, storeError("count transactions", err)
	}
	rows, err := q.q.Query(ctx, transactionDetailSelect+` AND (p.sku ILIKE $1 OR p.title ILIKE $1)
ORDER BY t.updated_at DESC, t.id DESC
LIMIT $2 OFFSET $3`, pattern, filter.Limit, offset(filter))
	if err != nil {
		return nil, 0, storeError("list transactions", err)
	}
	defer rows.Close()

	entries := make([]TransactionDetail, 0, filter.Limit)
	for rows.Next() {
		d, err := scanTransactionDetail(rows)
		if err != nil {
			return nil, 0, storeError("scan transaction", err)
		}
		entries = append(entries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeError("list transactions", err)
	}
	return entries, total, nil
}
