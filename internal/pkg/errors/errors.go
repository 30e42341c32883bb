// Package errors provides domain-specific error types for Provinator.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Provisioning failure taxonomy. Callers classify with errors.Is; the
// pipeline maps these onto terminal request states.
var (
	// ErrUnknownTemplate means no mapping or catalog entry matched a template key.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrNoAvailableCapacity means node selection found no online target.
	ErrNoAvailableCapacity = errors.New("no available capacity")

	// ErrHypervisor marks any vendor API failure surfaced by a driver.
	ErrHypervisor = errors.New("hypervisor error")

	// ErrTaskTimeout marks a hypervisor task that did not finish within its
	// deadline. Classified as a hypervisor failure.
	ErrTaskTimeout = fmt.Errorf("task timeout: %w", ErrHypervisor)

	// ErrInvalidTransition marks a state machine operation whose guard failed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotSupported marks a driver capability the hypervisor does not have.
	ErrNotSupported = errors.New("operation not supported")
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "UNKNOWN_TEMPLATE").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context for frontend/i18n interpolation.
	Params map[string]interface{} `json:"params,omitempty"`

	// FieldErrors carries field-level validation details for form binding.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// WithFieldErrors attaches field-level errors to the AppError.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// Common error constructors.

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

// BadRequest creates a 400 error.
func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

// Unauthorized creates a 401 error.
func Unauthorized(code, message string) *AppError {
	return New(code, message, http.StatusUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *AppError {
	return New(code, message, http.StatusForbidden)
}

// Conflict creates a 409 error.
func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// Internal creates a 500 error.
func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// Domain constructors for the provisioning taxonomy.

// UnknownTemplate creates the terminal error for an unresolvable template key.
func UnknownTemplate(key string) *AppError {
	return Wrap(ErrUnknownTemplate, "UNKNOWN_TEMPLATE",
		fmt.Sprintf("no template mapping or catalog entry for %q", key),
		http.StatusUnprocessableEntity)
}

// NoAvailableCapacity creates the terminal error for an empty candidate set
// during node selection.
func NoAvailableCapacity(detail string) *AppError {
	return Wrap(ErrNoAvailableCapacity, "NO_AVAILABLE_CAPACITY", detail,
		http.StatusServiceUnavailable)
}

// Hypervisor wraps a vendor API failure, preserving the vendor message.
func Hypervisor(err error, operation string) *AppError {
	return Wrap(fmt.Errorf("%w: %s: %v", ErrHypervisor, operation, err),
		"HYPERVISOR_ERROR",
		fmt.Sprintf("%s: %v", operation, err),
		http.StatusBadGateway)
}

// TaskTimeout creates the error for a hypervisor task exceeding its deadline.
func TaskTimeout(operation string, seconds int) *AppError {
	return Wrap(ErrTaskTimeout, "TASK_TIMEOUT",
		fmt.Sprintf("%s did not complete within %ds", operation, seconds),
		http.StatusGatewayTimeout)
}

// InvalidTransition creates the error for a rejected state machine guard.
func InvalidTransition(from, to string) *AppError {
	return Wrap(ErrInvalidTransition, "INVALID_TRANSITION",
		fmt.Sprintf("cannot transition from %s to %s", from, to),
		http.StatusConflict).
		WithParams(map[string]interface{}{"from": from, "to": to})
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Truncate caps a message at max bytes. Stored error text is bounded so a
// verbose vendor stack trace cannot blow up a row.
func Truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
