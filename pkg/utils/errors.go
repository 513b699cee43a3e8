package utils

import (
	"errors"
	"fmt"
	"runtime"
)

// AppError represents an application error with context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WithStackTrace adds stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// Common error codes
const (
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// NewValidationError reports a missing or malformed request field.
func NewValidationError(message string, details ...string) *AppError {
	return newAppErrorAt(2, ErrCodeValidation, message, details...)
}

// NewNotFoundError reports that no row matched the given identifier.
func NewNotFoundError(message string, details ...string) *AppError {
	return newAppErrorAt(2, ErrCodeNotFound, message, details...)
}

// NewStoreError wraps a backend failure. The cause goes into Details, which
// is logged but never returned to HTTP callers.
func NewStoreError(message string, cause error) *AppError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newAppErrorAt(2, ErrCodeDatabase, message, details)
}

func newAppErrorAt(skip int, code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(skip)
	err := &AppError{Code: code, Message: message, File: file, Line: line}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// ErrorCode returns the AppError code carried by err, or ErrCodeInternal
// when err is not an AppError.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err is a NOT_FOUND AppError.
func IsNotFound(err error) bool {
	return err != nil && ErrorCode(err) == ErrCodeNotFound
}

// IsValidation reports whether err is a VALIDATION_ERROR AppError.
func IsValidation(err error) bool {
	return err != nil && ErrorCode(err) == ErrCodeValidation
}
