package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound    ErrCode = "NOT_FOUND"
	ErrCodeInternal    ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest  ErrCode = "BAD_REQUEST"
	ErrCodeUnavailable ErrCode = "UNAVAILABLE"

	// ErrCodeTransient marks failures of external collaborators that were
	// retried and still failed (analysis call, malformed output).
	ErrCodeTransient ErrCode = "TRANSIENT_EXTERNAL"

	// ErrCodeStructural marks invalid catalog proposals. Never retried.
	ErrCodeStructural ErrCode = "STRUCTURAL"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewUnavailableError creates a new unavailable error
func NewUnavailableError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnavailable,
		Message: message,
	}
}

// NewTransientError creates an error for an external call that exhausted its retries
func NewTransientError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTransient,
		Message: message,
		Err:     err,
	}
}

// NewStructuralError creates an error for an invalid catalog proposal
func NewStructuralError(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeStructural,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the first AppError in the chain, empty if none
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsTransient checks if the error is a transient external error
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransient
}

// IsStructural checks if the error is a structural catalog error
func IsStructural(err error) bool {
	return CodeOf(err) == ErrCodeStructural
}
