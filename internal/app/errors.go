package app

import (
	"fmt"
	"net/http"
)

// DomainError is an expected failure with a stable code. mapError turns it
// into the response envelope; anything else becomes a generic 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// forbidden is returned for non-members too, so team ids cannot be enumerated.
func forbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// rateLimitedError carries the retry hint written to the Retry-After header.
func rateLimitedError(retryAfter int) *DomainError {
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", map[string]any{
		"retryAfterSeconds": retryAfter,
	})
}
