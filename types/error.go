package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrConflict           ErrorCode = "CONFLICT"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Job failure codes. Each maps to exactly one ErrorKind.
const (
	ErrValidation         ErrorCode = "VALIDATION"
	ErrExternalCapability ErrorCode = "EXTERNAL_CAPABILITY"
	ErrResource           ErrorCode = "RESOURCE"
	ErrUnclassified       ErrorCode = "UNCLASSIFIED"
)

// ErrorKind is the failure taxonomy recorded in error.details.kind of a failed job.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindExternalCapability ErrorKind = "external_capability"
	KindResource           ErrorKind = "resource"
	KindUnclassified       ErrorKind = "unclassified"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	// Capability names the external collaborator that failed (segmenter, analyzer, ffmpeg...).
	Capability string `json:"capability,omitempty"`
	// Path is the offending field path for validation failures, e.g. segments[0].duration_ms.
	Path  string `json:"path,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithCapability sets the failing capability name.
func (e *Error) WithCapability(capability string) *Error {
	e.Capability = capability
	return e
}

// WithPath sets the offending field path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Kind maps the code to the job failure taxonomy.
func (c ErrorCode) Kind() ErrorKind {
	switch c {
	case ErrValidation, ErrInvalidRequest:
		return KindValidation
	case ErrExternalCapability, ErrTimeout, ErrServiceUnavailable:
		return KindExternalCapability
	case ErrResource:
		return KindResource
	default:
		return KindUnclassified
	}
}

// NewValidationError creates a structural validation failure for a field path.
func NewValidationError(path, message string) *Error {
	return NewError(ErrValidation, fmt.Sprintf("%s: %s", path, message)).
		WithPath(path).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// NewExternalError wraps a failure of the segmenter, analyzer or another external capability.
func NewExternalError(capability, message string, cause error) *Error {
	return NewError(ErrExternalCapability, message).
		WithCapability(capability).
		WithCause(cause).
		WithHTTPStatus(http.StatusBadGateway)
}

// NewResourceError wraps an ingestion or artifact I/O failure.
func NewResourceError(message string, cause error) *Error {
	return NewError(ErrResource, message).WithCause(cause)
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// KindOf returns the failure kind of err. Errors without a *Error in their
// chain are unclassified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Code.Kind()
	}
	return KindUnclassified
}
