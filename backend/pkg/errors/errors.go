package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInitialization covers failed reads while opening a structure view
	ErrorTypeInitialization ErrorType = "initialization"
	// ErrorTypeStructuralWrite covers failed create / re-parent / detach calls
	ErrorTypeStructuralWrite ErrorType = "structural_write"
	// ErrorTypePositionWrite covers failed flow position persists
	ErrorTypePositionWrite ErrorType = "position_write"
	// ErrorTypeRemote represents non-success answers from the remote prompt store
	ErrorTypeRemote ErrorType = "remote"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
	// ErrorTypeValidation represents rejected user input
	ErrorTypeValidation ErrorType = "validation"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// base exposes the embedded BaseError of every typed wrapper to IsErrorType
func (e *BaseError) base() *BaseError {
	return e
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Structure view errors

// ErrInitializationFailed is returned when the root or children read fails
type ErrInitializationFailed struct {
	*BaseError
	RootKey string
}

func NewInitializationFailed(rootKey string, err error) *ErrInitializationFailed {
	return &ErrInitializationFailed{
		BaseError: NewBaseError(ErrorTypeInitialization, fmt.Sprintf("failed to initialize view for %s", rootKey), err),
		RootKey:   rootKey,
	}
}

// ErrStructuralWriteFailed is returned when a create, re-parent or detach call fails.
// The local graph is left as it was before the attempt.
type ErrStructuralWriteFailed struct {
	*BaseError
	Operation string
	NodeKey   string
	Payload   any
}

func NewStructuralWriteFailed(operation, nodeKey string, payload any, err error) *ErrStructuralWriteFailed {
	return &ErrStructuralWriteFailed{
		BaseError: NewBaseError(ErrorTypeStructuralWrite, fmt.Sprintf("%s failed for %s", operation, nodeKey), err),
		Operation: operation,
		NodeKey:   nodeKey,
		Payload:   payload,
	}
}

// ErrPositionWriteFailed records a failed flow position persist. It is only
// ever logged; the optimistic local position stays.
type ErrPositionWriteFailed struct {
	*BaseError
	NodeKey string
	X       int
	Y       int
}

func NewPositionWriteFailed(nodeKey string, x, y int, err error) *ErrPositionWriteFailed {
	return &ErrPositionWriteFailed{
		BaseError: NewBaseError(ErrorTypePositionWrite, fmt.Sprintf("failed to persist position of %s", nodeKey), err),
		NodeKey:   nodeKey,
		X:         x,
		Y:         y,
	}
}

// Remote store errors

// ErrRemoteStatus is returned when the prompt store answers with a non-2xx status
type ErrRemoteStatus struct {
	*BaseError
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func NewRemoteStatus(method, path string, statusCode int, body string) *ErrRemoteStatus {
	return &ErrRemoteStatus{
		BaseError:  NewBaseError(ErrorTypeRemote, fmt.Sprintf("%s %s returned %d", method, path, statusCode), nil),
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Body:       body,
	}
}

// ErrRemoteUnavailable is returned when the request never produced a response
type ErrRemoteUnavailable struct {
	*BaseError
	Method string
	Path   string
}

func NewRemoteUnavailable(method, path string, err error) *ErrRemoteUnavailable {
	return &ErrRemoteUnavailable{
		BaseError: NewBaseError(ErrorTypeRemote, fmt.Sprintf("%s %s failed", method, path), err),
		Method:    method,
		Path:      path,
	}
}

// Graph Errors

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Validation Errors

// ErrValidationFailed is returned when user supplied input is rejected
type ErrValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidationFailed(field, reason string) *ErrValidationFailed {
	return &ErrValidationFailed{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

type baser interface {
	base() *BaseError
}

// IsErrorType reports whether any error in the chain carries errType
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if b, ok := err.(baser); ok && b.base().Type == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRetryable reports whether repeating the call could succeed: transport
// failures and 5xx answers are, everything else is not.
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) ||
		stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var unavailable *ErrRemoteUnavailable
	if stderrors.As(err, &unavailable) {
		return true
	}
	var status *ErrRemoteStatus
	if stderrors.As(err, &status) {
		return status.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsNotFound reports whether the remote store answered 404
func IsNotFound(err error) bool {
	var status *ErrRemoteStatus
	return stderrors.As(err, &status) && status.StatusCode == http.StatusNotFound
}
