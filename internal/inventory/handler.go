package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ImportEnqueuer schedules a catalog import run and returns its task id.
type ImportEnqueuer interface {
	EnqueueCatalogImport(ctx context.Context) (string, error)
}

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	importer  ImportEnqueuer
	validator *validator.Validate
}

// NewHandler constructs the ledger handler. importer may be nil, which
// disables the import endpoint.
func NewHandler(logger *slog.Logger, service *Service, importer ImportEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, importer: importer, validator: newValidator()}
}

// MountRoutes registers product and transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Post("/import", h.importProducts)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Post("/", h.createTransaction)
		r.Get("/{id}", h.getTransaction)
		r.Put("/{id}", h.updateTransaction)
		r.Delete("/{id}", h.deleteTransaction)
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Page{
		Data:      mapSlice(page.Items, toProductResponse),
		TotalData: page.Total,
		Page:      page.Page,
		TotalPage: page.TotalPages,
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKRead, "Product retrieved successfully", toProductResponse(product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ProductInput{
		ProductFields: req.fields(),
		Stock:         *req.Stock,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKCreated, "Product created successfully", toProductResponse(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req productRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, req.fields(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKUpdated, "Product updated successfully", toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKDeleted, "Product deleted successfully", map[string]int64{"id": id})
}

func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "Service Unavailable", "Catalog import is not configured.")
		return
	}
	taskID, err := h.importer.EnqueueCatalogImport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("catalog import enqueued", slog.String("task_id", taskID))
	httpx.JSON(w, http.StatusAccepted, httpx.Envelope{
		Message: "Catalog import scheduled",
		Data:    map[string]string{"task_id": taskID},
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Page{
		Data:      mapSlice(page.Items, toTransactionResponse),
		TotalData: page.Total,
		Page:      page.Page,
		TotalPage: page.TotalPages,
	})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKRead, "Transaction retrieved successfully", toTransactionResponse(detail))
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.service.CreateTransaction(r.Context(), CreateTransactionInput{
		SKU:            req.SKU,
		Qty:            *req.Qty,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKCreated, "Transaction created successfully", toTransactionResponse(detail))
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	detail, err := h.service.UpdateTransaction(r.Context(), id, UpdateTransactionInput{
		SKU:     req.SKU,
		Qty:     *req.Qty,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKUpdated, "Transaction updated successfully", toTransactionResponse(detail))
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Respond(w, httpx.CategoryOKDeleted, "Transaction deleted successfully", map[string]int64{"id": id})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", ErrValidation, err)
	}
	if err := h.validator.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if category, _ := httpx.Classify(err); category == httpx.CategoryServerError {
		h.logger.Error("inventory request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", ErrValidation)
	}
	return id, nil
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Keyword: q.Get("keyword")}
	var err error
	if v := q.Get("page"); v != "" {
		if filter.Page, err = strconv.Atoi(v); err != nil || filter.Page < 1 {
			return ListFilter{}, fmt.Errorf("%w: page must be a positive integer", ErrValidation)
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 1 {
			return ListFilter{}, fmt.Errorf("%w: limit must be a positive integer", ErrValidation)
		}
	}
	return filter, nil
}
