package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

const productColumns = `id, sku, title, image, description, price, stock, created_at, updated_at, deleted_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Title, &p.Image, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, err
}

func (q queries) CreateProduct(ctx context.Context, fields ProductFields) (Product, error) {
	row := q.q.QueryRow(ctx, `INSERT INTO products (sku, title, image, description, price, stock)
VALUES ($1, $2, $3, $4, $5, 0)
RETURNING `+productColumns, fields.SKU, fields.Title, fields.Image, fields.Description, fields.Price)
	p, err := scanProduct(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, writeError("insert product", err)
	}
	return p, nil
}

func (q queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	return q.getProduct(ctx, id, "")
}

func (q queries) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return q.getProduct(ctx, id, " FOR UPDATE")
}

func (q queries) getProduct(ctx context.Context, id int64, lock string) (Product, error) {
	row := q.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`+lock, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, storeError("get product", err)
	}
	return p, nil
}

func (q queries) FindProductBySKU(ctx context.Context, sku string, excludeID int64) (Product, bool, error) {
	row := q.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products
WHERE sku = $1 AND id <> $2 AND deleted_at IS NULL`, sku, excludeID)
	return findProduct(row)
}

func (q queries) FindProductBySKUForUpdate(ctx context.Context, sku string) (Product, bool, error) {
	row := q.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products
WHERE sku = $1 AND deleted_at IS NULL FOR UPDATE`, sku)
	return findProduct(row)
}

func findProduct(row pgx.Row) (Product, bool, error) {
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, false, nil
		}
		return Product{}, false, storeError("find product by sku", err)
	}
	return p, true, nil
}

func (q queries) UpdateProductFields(ctx context.Context, id int64, fields ProductFields) (Product, error) {
	row := q.q.QueryRow(ctx, `UPDATE products
SET sku = $2, title = $3, image = $4, description = $5, price = $6, updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
RETURNING `+productColumns, id, fields.SKU, fields.Title, fields.Image, fields.Description, fields.Price)
	p, err := scanProduct(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Product{}, ErrProductNotFound
		case db.IsUniqueViolation(err):
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, writeError("update product", err)
	}
	return p, nil
}

// AdjustStock is the only statement that writes products.stock. The guard in
// the WHERE clause keeps the counter non-negative even if a caller skipped
// validation; the column CHECK is reported the same way.
func (q queries) AdjustStock(ctx context.Context, id, delta int64) (Product, error) {
	row := q.q.QueryRow(ctx, `UPDATE products
SET stock = stock + $2, updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL AND stock + $2 >= 0
RETURNING `+productColumns, id, delta)
	p, err := scanProduct(row)
	if err == nil {
		return p, nil
	}
	if db.ErrorCode(err) == db.CodeCheckViolation {
		return Product{}, ErrInsufficientStock
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, writeError("adjust stock", err)
	}
	var exists bool
	if err := q.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists); err != nil {
		return Product{}, storeError("check product exists", err)
	}
	if !exists {
		return Product{}, ErrProductNotFound
	}
	return Product{}, ErrInsufficientStock
}

func (q queries) SoftDeleteProduct(ctx context.Context, id int64) error {
	tag, err := q.q.Exec(ctx, `UPDATE products SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return storeError("soft delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (q queries) listProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	pattern := likePattern(filter.Keyword)
	var total int
	if err := q.q.QueryRow(ctx, `SELECT COUNT(*) FROM products
WHERE deleted_at IS NULL AND (sku ILIKE $1 OR title ILIKE $1)`, pattern).Scan(&total); err != nil {
		return nil, 0, storeError("count products", err)
	}
	rows, err := q.q.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE deleted_at IS NULL AND (sku ILIKE $1 OR title ILIKE $1)
ORDER BY updated_at DESC, id DESC
LIMIT $2 OFFSET $3`, pattern, filter.Limit, offset(filter))
	if err != nil {
		return nil, 0, storeError("list products", err)
	}
	defer rows.Close()

	products := make([]Product, 0, filter.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, storeError("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeError("list products", err)
	}
	return products, total, nil
}
