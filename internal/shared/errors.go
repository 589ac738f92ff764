package shared

import "errors"

// Error kinds shared by every module. Domain errors wrap one of these so the
// transport layer can classify them without knowing the domain.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or replay conflict.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrRuleViolation indicates a well-formed request rejected by a business rule.
	ErrRuleViolation = errors.New("business rule violated")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// KindError is a domain error that classifies itself under one of the kinds above.
type KindError struct {
	kind error
	msg  string
}

// NewKindError builds a domain error of the given kind.
func NewKindError(kind error, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

func (e *KindError) Error() string { return e.msg }

// Unwrap exposes the kind to errors.Is.
func (e *KindError) Unwrap() error { return e.kind }
