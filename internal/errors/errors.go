// Package errors categorizes the failures the sync client can observe so
// callers can decide between "retry on next tick" and "tell the user".
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/wallet-sync/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransient is a network failure or timeout; the next cycle retries
	CategoryTransient ErrorCategory = "transient"
	// CategoryCapability means the platform lacks push/notification support
	CategoryCapability ErrorCategory = "capability"
	// CategoryPermission means the user declined notifications
	CategoryPermission ErrorCategory = "permission"
	// CategorySubscription is a failure inside the subscribe flow after permission
	CategorySubscription ErrorCategory = "subscription"
	// CategoryOrphan means a backend push registration may outlive its endpoint
	CategoryOrphan ErrorCategory = "orphan"
	// CategoryStorage is a local preference store failure
	CategoryStorage ErrorCategory = "storage"
	// CategoryUnauthorized means the backend rejected the bearer token
	CategoryUnauthorized ErrorCategory = "unauthorized"
	// CategoryNotFound means the backend does not know the resource
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryValidation means a malformed request or response
	CategoryValidation ErrorCategory = "validation"
	// CategoryInternal is everything else
	CategoryInternal ErrorCategory = "internal"
)

// CategorizedError represents an error with a category and a stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to the wire error shape used by the local API
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Transient failures

// NewTransientError wraps a network-level failure against the backend
func NewTransientError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "TRANSIENT_FAILURE",
		Message:  fmt.Sprintf("request failed: %s", operation),
		Cause:    cause,
		Details:  map[string]interface{}{"operation": operation},
	}
}

// NewTimeoutError reports a request aborted by its deadline
func NewTimeoutError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "TIMEOUT",
		Message:  fmt.Sprintf("request timed out: %s", operation),
		Cause:    cause,
		Details:  map[string]interface{}{"operation": operation},
	}
}

// NewUpstreamError maps a non-2xx backend response to a category
func NewUpstreamError(operation string, statusCode int, body string) *CategorizedError {
	e := &CategorizedError{
		Category: CategoryTransient,
		Code:     "UPSTREAM_ERROR",
		Message:  fmt.Sprintf("%s returned status %d", operation, statusCode),
		Details: map[string]interface{}{
			"operation":  operation,
			"statusCode": statusCode,
		},
	}
	if body != "" {
		e.Details["body"] = body
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Category = CategoryUnauthorized
		e.Code = "UNAUTHORIZED"
	case statusCode == http.StatusNotFound:
		e.Category = CategoryNotFound
		e.Code = "NOT_FOUND"
	case statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests && statusCode != http.StatusRequestTimeout:
		e.Category = CategoryValidation
		e.Code = "BAD_REQUEST"
	}
	return e
}

// NewDecodeError reports a response body that did not match the expected shape
func NewDecodeError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "DECODE_ERROR",
		Message:  fmt.Sprintf("unexpected response shape from %s", operation),
		Cause:    cause,
	}
}

// Notification errors

// NewUnsupportedError reports missing push/notification/service-worker support
func NewUnsupportedError(capability string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryCapability,
		Code:     "UNSUPPORTED",
		Message:  fmt.Sprintf("platform does not support %s", capability),
		Details:  map[string]interface{}{"capability": capability},
	}
}

// NewPermissionDeniedError reports that notification permission is not granted
func NewPermissionDeniedError(state types.Permission) *CategorizedError {
	return &CategorizedError{
		Category: CategoryPermission,
		Code:     "PERMISSION_DENIED",
		Message:  "notification permission not granted",
		Details:  map[string]interface{}{"permission": string(state)},
	}
}

// NewSubscriptionError reports a failed subscribe step
func NewSubscriptionError(step string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySubscription,
		Code:     "SUBSCRIPTION_FAILED",
		Message:  fmt.Sprintf("push subscription failed at %s", step),
		Cause:    cause,
		Details:  map[string]interface{}{"step": step},
	}
}

// NewOrphanError reports a platform teardown whose backend deletion failed
func NewOrphanError(endpoint string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryOrphan,
		Code:     "ORPHANED_REGISTRATION",
		Message:  "push subscription removed locally but backend deletion failed",
		Cause:    cause,
		Details:  map[string]interface{}{"endpoint": endpoint},
	}
}

// NewStorageError wraps a preference store failure
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryStorage,
		Code:     "STORAGE_ERROR",
		Message:  fmt.Sprintf("preference store error during %s", operation),
		Cause:    cause,
		Details:  map[string]interface{}{"operation": operation},
	}
}

// NewInvalidParameterError reports a bad argument
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_PARAMETER",
		Message:  fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryInternal,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize returns err as a CategorizedError, searching the wrap chain first
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// CategoryOf returns the category of err, or "" for nil
func CategoryOf(err error) ErrorCategory {
	if c := Categorize(err); c != nil {
		return c.Category
	}
	return ""
}

// Is reports whether err belongs to the given category
func Is(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}

// IsRetryable reports whether retrying later could succeed
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryTransient, CategoryStorage, CategoryOrphan:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a category to the status used by the local API
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case "":
		return http.StatusOK
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryPermission, CategoryUnauthorized:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryCapability:
		return http.StatusNotImplemented
	case CategoryTransient, CategorySubscription, CategoryOrphan:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
