package httpx

import (
	"encoding/json"
	"net/http"
)

// Category names the outcome of a request independently of the wire status.
type Category string

const (
	CategoryOKRead      Category = "ok-read"
	CategoryOKCreated   Category = "ok-created"
	CategoryOKUpdated   Category = "ok-updated"
	CategoryOKDeleted   Category = "ok-deleted"
	CategoryClientError Category = "client-error"
	CategoryNotFound    Category = "not-found"
	CategoryServerError Category = "server-error"
)

// Status returns the HTTP status used for a success category.
func (c Category) Status() int {
	switch c {
	case CategoryOKCreated:
		return http.StatusCreated
	case CategoryOKRead, CategoryOKUpdated, CategoryOKDeleted:
		return http.StatusOK
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryClientError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the body of every successful single-resource response.
type Envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Page is the body of every listing response.
type Page struct {
	Data      any `json:"data"`
	TotalData int `json:"total_data"`
	Page      int `json:"page"`
	TotalPage int `json:"total_page"`
}

// ErrorBody is the body of every failed response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Respond sends a success envelope for the given category.
func Respond(w http.ResponseWriter, category Category, message string, data any) {
	JSON(w, category.Status(), Envelope{Message: message, Data: data})
}

// Error sends an error body.
func Error(w http.ResponseWriter, status int, title, message string) {
	JSON(w, status, ErrorBody{Error: title, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
