package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the access layer.
type ErrorCode string

// Pool and configuration error codes
const (
	ErrNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrConfiguration  ErrorCode = "CONFIGURATION"
	ErrConnection     ErrorCode = "CONNECTION"
)

// Statement builder error codes
const (
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrInvalidInput    ErrorCode = "INVALID_INPUT"
)

// Execution error codes
const (
	ErrExecution      ErrorCode = "EXECUTION"
	ErrObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Database  string    `json:"database,omitempty"`
	QueryID   string    `json:"query_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// Is reports whether target is an *Error carrying the same code, so that
// errors.Is(err, &Error{Code: ErrObjectNotFound}) works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDatabase records the logical database the error relates to.
func (e *Error) WithDatabase(db string) *Error {
	e.Database = db
	return e
}

// WithQueryID records the correlation id of the failed statement.
func (e *Error) WithQueryID(id string) *Error {
	e.QueryID = id
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts an *Error from the chain.
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

// IsCode reports whether any error in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
