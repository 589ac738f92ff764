package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]TransactionDetail, int, error)
	GetTransactionDetail(ctx context.Context, id int64) (TransactionDetail, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reserves request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher ships committed ledger events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// OutcomeRecorder counts reconciliation outcomes.
type OutcomeRecorder interface {
	ObserveReconciliation(op, outcome string)
}

// Service coordinates the product store, the ledger and the query cache.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       *QueryCache
	events      EventPublisher
	metrics     OutcomeRecorder
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig groups optional collaborators. Nil members are skipped.
type ServiceConfig struct {
	Cache   *QueryCache
	Events  EventPublisher
	Metrics OutcomeRecorder
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	s := &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		cache:       cfg.Cache,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/odyssey-erp/stockledger/internal/inventory")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateProduct registers a product and books its opening stock.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (product Product, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.CreateProduct", trace.WithAttributes(attribute.String("sku", input.SKU)))
	defer func() { endSpan(span, err) }()

	input.ProductFields = normaliseFields(input.ProductFields)
	if err := validateFields(input.ProductFields); err != nil {
		return Product{}, err
	}
	if err := validateStock(input.Stock); err != nil {
		return Product{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, exists, err := tx.FindProductBySKU(ctx, input.SKU, 0); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: %q", ErrDuplicateSKU, input.SKU)
		}
		created, err := tx.CreateProduct(ctx, input.ProductFields)
		if err != nil {
			return err
		}
		if input.Stock > 0 {
			created, err = tx.AdjustStock(ctx, created.ID, input.Stock)
			if err != nil {
				return err
			}
		}
		product = created
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "product:create",
		Entity:   "product",
		EntityID: strconv.FormatInt(product.ID, 10),
		Meta:     map[string]any{"sku": product.SKU, "stock": product.Stock, "price": product.Price.StringFixed(2)},
	}, nil)
	return product, nil
}

// UpdateProduct replaces the display attributes of a product. Stock is not editable.
func (s *Service) UpdateProduct(ctx context.Context, id int64, fields ProductFields, actorID int64) (product Product, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.UpdateProduct", trace.WithAttributes(attribute.Int64("product_id", id)))
	defer func() { endSpan(span, err) }()

	if id <= 0 {
		return Product{}, fmt.Errorf("%w: product id required", ErrValidation)
	}
	fields = normaliseFields(fields)
	if err := validateFields(fields); err != nil {
		return Product{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.SKU != fields.SKU {
			if _, exists, err := tx.FindProductBySKU(ctx, fields.SKU, id); err != nil {
				return err
			} else if exists {
				return fmt.Errorf("%w: %q", ErrDuplicateSKU, fields.SKU)
			}
		}
		product, err = tx.UpdateProductFields(ctx, id, fields)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "product:update",
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"sku": product.SKU, "price": product.Price.StringFixed(2)},
	}, nil)
	return product, nil
}

// DeleteProduct soft-deletes a product together with its ledger entries.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actorID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.DeleteProduct", trace.WithAttributes(attribute.Int64("product_id", id)))
	defer func() { endSpan(span, err) }()

	if id <= 0 {
		return fmt.Errorf("%w: product id required", ErrValidation)
	}
	var (
		product  Product
		cascaded int64
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SoftDeleteProduct(ctx, id); err != nil {
			return err
		}
		cascaded, err = tx.SoftDeleteTransactionsByProduct(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("product deleted", slog.Int64("product_id", id), slog.Int64("transactions", cascaded))
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "product:delete",
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"sku": product.SKU, "transactions": cascaded},
	}, &TransactionEvent{
		Type:      EventProductDeleted,
		ProductID: id,
		SKU:       product.SKU,
		ActorID:   actorID,
	})
	return nil
}

// UpsertCatalogProduct creates a product from a catalog entry or refreshes the
// display attributes of the active product owning its sku. Stock of an
// existing product belongs to the ledger and is left untouched.
func (s *Service) UpsertCatalogProduct(ctx context.Context, item CatalogProduct) (product Product, outcome UpsertOutcome, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.UpsertCatalogProduct", trace.WithAttributes(attribute.String("sku", item.SKU)))
	defer func() { endSpan(span, err) }()

	item.ProductFields = normaliseFields(item.ProductFields)
	if err := validateFields(item.ProductFields); err != nil {
		return Product{}, "", err
	}
	if err := validateStock(item.Stock); err != nil {
		return Product{}, "", err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, exists, err := tx.FindProductBySKUForUpdate(ctx, item.SKU)
		if err != nil {
			return err
		}
		if exists {
			outcome = UpsertUpdated
			product, err = tx.UpdateProductFields(ctx, existing.ID, item.ProductFields)
			return err
		}
		outcome = UpsertCreated
		product, err = tx.CreateProduct(ctx, item.ProductFields)
		if err != nil || item.Stock == 0 {
			return err
		}
		product, err = tx.AdjustStock(ctx, product.ID, item.Stock)
		return err
	})
	if err != nil {
		return Product{}, "", err
	}
	s.afterCommit(ctx, shared.AuditLog{
		Action:   "product:import",
		Entity:   "product",
		EntityID: strconv.FormatInt(product.ID, 10),
		Meta:     map[string]any{"sku": product.SKU, "outcome": string(outcome)},
	}, nil)
	return product, outcome, nil
}

// afterCommit runs the post-commit side effects. None of them can undo the
// committed change, so failures are logged and swallowed here.
func (s *Service) afterCommit(ctx context.Context, log shared.AuditLog, evt *TransactionEvent) {
	if s.audit != nil {
		if log.ActorID == 0 {
			log.ActorID = shared.ActorFromContext(ctx)
		}
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
		}
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("query cache bump failed", slog.Any("error", err))
	}
	if evt != nil && s.events != nil {
		evt.ID = uuid.NewString()
		evt.OccurredAt = s.now()
		if err := s.events.Publish(ctx, evt.Type, strconv.FormatInt(evt.ProductID, 10), evt); err != nil {
			s.logger.Warn("publish ledger event failed", slog.String("type", evt.Type), slog.Any("error", err))
		}
	}
}

func (s *Service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveReconciliation(op, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func normaliseFields(f ProductFields) ProductFields {
	f.SKU = strings.TrimSpace(f.SKU)
	f.Title = strings.TrimSpace(normaliseText(f.Title))
	f.Image = strings.TrimSpace(f.Image)
	if f.Description != nil {
		d := normaliseText(*f.Description)
		f.Description = &d
	}
	f.Price = f.Price.Round(2)
	return f
}

func validateFields(f ProductFields) error {
	var problems []string
	if f.SKU == "" {
		problems = append(problems, "sku is required")
	}
	if f.Title == "" {
		problems = append(problems, "title is required")
	}
	if f.Price.IsNegative() {
		problems = append(problems, "price must be >= 0")
	} else if f.Price.GreaterThanOrEqual(maxPrice) {
		problems = append(problems, "price must be below "+maxPrice.String())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
	}
	return nil
}
