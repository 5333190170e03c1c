// Package apperror defines the error type returned across service boundaries.
// The HTTP layer renders it as {success:false, code, message, details}.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeInternal               = "INTERNAL_ERROR"
	CodeValidation             = "VALIDATION_FAILURE"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeDuplicate              = "DUPLICATE_KEY"
	CodeIdempotency            = "IDEMPOTENCY_CONFLICT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
)

var statusByCode = map[string]int{
	CodeInternal:               http.StatusInternalServerError,
	CodeValidation:             http.StatusBadRequest,
	CodeNotFound:               http.StatusNotFound,
	CodeInvalidTransition:      http.StatusConflict,
	CodeInsufficientStock:      http.StatusConflict,
	CodeConcurrentModification: http.StatusConflict,
	CodeDuplicate:              http.StatusConflict,
	CodeIdempotency:            http.StatusConflict,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
}

// AppError is a business error with a stable code.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"` // never sent to clients
}

// New builds an error whose HTTP status follows from code.
func New(code, message string) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets details[key] and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 4)
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) with(kv ...any) *AppError {
	for i := 0; i+1 < len(kv); i += 2 {
		e.WithDetail(kv[i].(string), kv[i+1])
	}
	return e
}

func NewValidation(message string) *AppError { return New(CodeValidation, message) }

func NewUnauthorized(message string) *AppError { return New(CodeUnauthorized, message) }

func NewForbidden(message string) *AppError { return New(CodeForbidden, message) }

// NewInternal hides err from the client; it is logged by the error middleware.
func NewInternal(err error) *AppError {
	return New(CodeInternal, "Internal server error").WithCause(err)
}

func NewNotFound(entity string, id any) *AppError {
	return New(CodeNotFound, entity+" not found").with("entity", entity, "id", id)
}

// NewInvalidTransition rejects a status change missing from the entity's
// transition table.
func NewInvalidTransition(entity string, from, to any) *AppError {
	return New(CodeInvalidTransition, fmt.Sprintf("%s cannot move from %v to %v", entity, from, to)).
		with("entity", entity, "from", fmt.Sprint(from), "to", fmt.Sprint(to))
}

// NewInvalidState rejects an operation the current status does not allow.
func NewInvalidState(entity string, status any, operation string) *AppError {
	return New(CodeInvalidTransition, fmt.Sprintf("%s in status %v does not allow %s", entity, status, operation)).
		with("entity", entity, "status", fmt.Sprint(status), "operation", operation)
}

// NewInsufficientStock reports a shortage on one balance key. Quantities are
// decimal strings.
func NewInsufficientStock(key, requested, available string) *AppError {
	return New(CodeInsufficientStock, "Insufficient stock").
		with("key", key, "requested", requested, "available", available)
}

// NewConcurrentModification reports a lost optimistic-lock race.
func NewConcurrentModification(entity string, id any) *AppError {
	return New(CodeConcurrentModification, "Record was modified by another user. Please refresh and try again.").
		with("entity", entity, "id", id)
}

func NewDuplicate(entity, field, value string) *AppError {
	return New(CodeDuplicate, fmt.Sprintf("%s with this %s already exists", entity, field)).
		with("entity", entity, "field", field, "value", value)
}

// NewIdempotencyConflict: the key is held by a request still running.
func NewIdempotencyConflict(key string) *AppError {
	return New(CodeIdempotency, "Operation already in progress or completed").with("idempotency_key", key)
}

// NewIdempotencyMismatch: the key was used before with another user,
// operation or body.
func NewIdempotencyMismatch(key string) *AppError {
	return New(CodeIdempotency, "Idempotency key mismatch").with("idempotency_key", key)
}

// AsAppError finds an AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain carries an AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool               { return HasCode(err, CodeNotFound) }
func IsInsufficientStock(err error) bool      { return HasCode(err, CodeInsufficientStock) }
func IsInvalidTransition(err error) bool      { return HasCode(err, CodeInvalidTransition) }
func IsConcurrentModification(err error) bool { return HasCode(err, CodeConcurrentModification) }
