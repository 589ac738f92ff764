package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

type productRequest struct {
	Title       string           `json:"title" validate:"required,max=255"`
	SKU         string           `json:"sku" validate:"required,max=255"`
	Image       string           `json:"image" validate:"required,max=2048"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=10000"`
}

func (r productRequest) fields() ProductFields {
	f := ProductFields{SKU: r.SKU, Title: r.Title, Image: r.Image, Description: r.Description}
	if r.Price != nil {
		f.Price = *r.Price
	}
	return f
}

type createProductRequest struct {
	productRequest
	Stock *int64 `json:"stock" validate:"required,gte=0,max=1000000000000"`
}

type createTransactionRequest struct {
	SKU string `json:"sku" validate:"required,max=255"`
	Qty *int64 `json:"qty" validate:"required,min=-1000000000000,max=1000000000000"`
}

type updateTransactionRequest struct {
	SKU string `json:"sku,omitempty" validate:"omitempty,max=255"`
	Qty *int64 `json:"qty" validate:"required,min=-1000000000000,max=1000000000000"`
}

type productResponse struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	SKU         string      `json:"sku"`
	Image       string      `json:"image"`
	Price       json.Number `json:"price"`
	Stock       int64       `json:"stock"`
	Description *string     `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Title:       p.Title,
		SKU:         p.SKU,
		Image:       p.Image,
		Price:       money(p.Price),
		Stock:       p.Stock,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type transactionResponse struct {
	ID        int64       `json:"id"`
	ProductID int64       `json:"product_id"`
	SKU       string      `json:"sku"`
	Title     string      `json:"title"`
	Qty       int64       `json:"qty"`
	Amount    json.Number `json:"amount"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func toTransactionResponse(d TransactionDetail) transactionResponse {
	return transactionResponse{
		ID:        d.ID,
		ProductID: d.ProductID,
		SKU:       d.SKU,
		Title:     d.Title,
		Qty:       d.Qty,
		Amount:    money(d.Amount),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

// normaliseText folds display text to NFC so visually equal strings compare equal.
func normaliseText(s string) string {
	return norm.NFC.String(s)
}

// validationError flattens validator output into one ErrValidation.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
