// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Classify maps an error onto its result category and HTTP status.
func Classify(err error) (Category, int) {
	switch {
	case err == nil:
		return CategoryOKRead, http.StatusOK
	case errors.Is(err, shared.ErrNotFound):
		return CategoryNotFound, http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return CategoryClientError, http.StatusConflict
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRuleViolation):
		return CategoryClientError, http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrUnauthorized):
		return CategoryClientError, http.StatusUnauthorized
	default:
		return CategoryServerError, http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses. Server errors never leak
// their cause to the caller.
func RespondError(w http.ResponseWriter, err error) {
	category, status := Classify(err)
	switch category {
	case CategoryServerError:
		Error(w, status, "Internal Server Error", "An unexpected error occurred.")
	case CategoryNotFound:
		Error(w, status, "Not Found", err.Error())
	default:
		Error(w, status, titleFor(status), err.Error())
	}
}

func titleFor(status int) string {
	switch status {
	case http.StatusConflict:
		return "Conflict"
	case http.StatusUnprocessableEntity:
		return "Validation Error"
	case http.StatusUnauthorized:
		return "Unauthorized"
	default:
		return http.StatusText(status)
	}
}
