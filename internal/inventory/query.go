package inventory

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ListProducts returns a page of active products, most recently updated first.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter) (page Page[Product], err error) {
	filter = normaliseFilter(filter, DefaultProductLimit)
	ctx, span := s.tracer.Start(ctx, "inventory.ListProducts", trace.WithAttributes(attribute.Int("page", filter.Page)))
	defer func() { endSpan(span, err) }()

	return cached(ctx, s.cache, func(ctx context.Context) (Page[Product], error) {
		items, total, err := s.repo.ListProducts(ctx, filter)
		if err != nil {
			return Page[Product]{}, err
		}
		return newPage(items, total, filter), nil
	}, listKey("products", filter)...)
}

// GetProduct returns one active product.
func (s *Service) GetProduct(ctx context.Context, id int64) (product Product, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.GetProduct", trace.WithAttributes(attribute.Int64("product_id", id)))
	defer func() { endSpan(span, err) }()

	if id <= 0 {
		return Product{}, fmt.Errorf("%w: product id required", ErrValidation)
	}
	return cached(ctx, s.cache, func(ctx context.Context) (Product, error) {
		return s.repo.GetProduct(ctx, id)
	}, detailKey("products", id)...)
}

// ListTransactions returns a page of active ledger entries, most recently updated first.
func (s *Service) ListTransactions(ctx context.Context, filter ListFilter) (page Page[TransactionDetail], err error) {
	filter = normaliseFilter(filter, DefaultTransactionLimit)
	ctx, span := s.tracer.Start(ctx, "inventory.ListTransactions", trace.WithAttributes(attribute.Int("page", filter.Page)))
	defer func() { endSpan(span, err) }()

	return cached(ctx, s.cache, func(ctx context.Context) (Page[TransactionDetail], error) {
		items, total, err := s.repo.ListTransactions(ctx, filter)
		if err != nil {
			return Page[TransactionDetail]{}, err
		}
		return newPage(items, total, filter), nil
	}, listKey("transactions", filter)...)
}

// GetTransaction returns one active ledger entry with its product's sku and title.
func (s *Service) GetTransaction(ctx context.Context, id int64) (detail TransactionDetail, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.GetTransaction", trace.WithAttributes(attribute.Int64("transaction_id", id)))
	defer func() { endSpan(span, err) }()

	if id <= 0 {
		return TransactionDetail{}, fmt.Errorf("%w: transaction id required", ErrValidation)
	}
	return cached(ctx, s.cache, func(ctx context.Context) (TransactionDetail, error) {
		return s.repo.GetTransactionDetail(ctx, id)
	}, detailKey("transactions", id)...)
}

func normaliseFilter(filter ListFilter, defaultLimit int) ListFilter {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	filter.Limit = shared.ClampLimit(filter.Limit, defaultLimit, MaxListLimit)
	filter.Keyword = strings.TrimSpace(normaliseText(filter.Keyword))
	return filter
}

func newPage[T any](items []T, total int, filter ListFilter) Page[T] {
	if items == nil {
		items = []T{}
	}
	meta := shared.NewPagination(filter.Page, filter.Limit, total)
	return Page[T]{Items: items, Total: meta.Total, Page: meta.Page, TotalPages: meta.TotalPages}
}
