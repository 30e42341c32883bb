package errors

import "net/http"

// Error code constants.
// Errors carry code + params; the frontend translates codes, backend logs
// stay in English.

// Request/deployment error codes.
const (
	CodeRequestNotFound    = "REQUEST_NOT_FOUND"
	CodeDeploymentNotFound = "DEPLOYMENT_NOT_FOUND"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeSizeNotFound       = "SIZE_NOT_FOUND"
)

// Provisioning error codes.
const (
	CodeUnknownTemplate     = "UNKNOWN_TEMPLATE"
	CodeNoCapacity          = "NO_AVAILABLE_CAPACITY"
	CodeHypervisorError     = "HYPERVISOR_ERROR"
	CodeTaskTimeout         = "TASK_TIMEOUT"
	CodeProvisioningFailed  = "PROVISIONING_FAILED"
	CodeEnvironmentNotFound = "ENVIRONMENT_NOT_FOUND"
	CodeEnvironmentDisabled = "ENVIRONMENT_DISABLED"
	CodeEnvironmentInvalid  = "ENVIRONMENT_INVALID"
)

// Auth error codes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

// Validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNameInvalid         = "NAME_INVALID"
)

// Convenience constructors using predefined codes.

// ErrRequestNotFoundf creates a request not found error.
func ErrRequestNotFoundf(id int64) *AppError {
	return &AppError{
		Code:       CodeRequestNotFound,
		Message:    "VM request not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"id": id},
	}
}

// ErrDeploymentNotFoundf creates a deployment not found error.
func ErrDeploymentNotFoundf(id int64) *AppError {
	return &AppError{
		Code:       CodeDeploymentNotFound,
		Message:    "deployment not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"id": id},
	}
}

// ErrEnvironmentNotFoundf creates an environment not found error.
func ErrEnvironmentNotFoundf(id int64) *AppError {
	return &AppError{
		Code:       CodeEnvironmentNotFound,
		Message:    "environment not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"id": id},
	}
}

// ErrInvalidRequestFieldf creates a bad request error for forbidden fields.
func ErrInvalidRequestFieldf(fieldName string) *AppError {
	return &AppError{
		Code:       CodeInvalidRequestField,
		Message:    "request contains forbidden field: " + fieldName,
		HTTPStatus: http.StatusBadRequest,
	}
}
