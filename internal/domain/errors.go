// Package domain provides the canonical error taxonomy for the gateway.
package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of a gateway error.
type ErrorType string

const (
	// ErrorTypeUnauthenticated indicates a missing or invalid credential.
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"

	// ErrorTypeForbidden indicates a valid credential for a disallowed
	// tenant or a mismatched identity.
	ErrorTypeForbidden ErrorType = "forbidden"

	// ErrorTypeBadRequest indicates missing required identifiers.
	ErrorTypeBadRequest ErrorType = "bad_request"

	// ErrorTypeNotConfigured indicates the tenant lacks provider config.
	ErrorTypeNotConfigured ErrorType = "not_configured"

	// ErrorTypeUpstreamUnavailable indicates a transport failure talking
	// to the provider (connection error or timeout, no response body).
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"

	// ErrorTypeUpstreamRejected indicates the provider answered with a
	// structured non-2xx response.
	ErrorTypeUpstreamRejected ErrorType = "upstream_rejected"

	// ErrorTypeNotFound indicates an unknown tenant or conversation.
	ErrorTypeNotFound ErrorType = "not_found"
)

// MaxUpstreamStatus caps relayed provider status codes at a value that is
// still a valid HTTP status.
const MaxUpstreamStatus = 599

// APIError is a canonical gateway error that handlers translate to HTTP.
type APIError struct {
	// Type is the category of error.
	Type ErrorType `json:"type"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// StatusCode overrides the type's default HTTP status when non-zero.
	// Used to relay (capped) provider status codes.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		if e.StatusCode > MaxUpstreamStatus {
			return MaxUpstreamStatus
		}
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeBadRequest:
		return http.StatusBadRequest
	case ErrorTypeNotConfigured:
		return http.StatusServiceUnavailable
	case ErrorTypeUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrorTypeUpstreamRejected:
		return http.StatusBadGateway
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrUnauthenticated creates an authentication failure.
func ErrUnauthenticated(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthenticated, Message: message}
}

// ErrForbidden creates an authorization failure.
func ErrForbidden(message string) *APIError {
	return &APIError{Type: ErrorTypeForbidden, Message: message}
}

// ErrBadRequest creates a missing-identifier failure.
func ErrBadRequest(message string) *APIError {
	return &APIError{Type: ErrorTypeBadRequest, Message: message}
}

// ErrNotConfigured signals that a tenant has no usable provider config.
func ErrNotConfigured(message string) *APIError {
	return &APIError{Type: ErrorTypeNotConfigured, Message: message}
}

// ErrUpstreamUnavailable signals a transport-level provider failure.
func ErrUpstreamUnavailable(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstreamUnavailable, Message: message}
}

// ErrUpstreamRejected relays a structured provider rejection. The provider's
// status code is kept (capped at MaxUpstreamStatus) so callers can see it.
func ErrUpstreamRejected(statusCode int, message string) *APIError {
	if statusCode > MaxUpstreamStatus {
		statusCode = MaxUpstreamStatus
	}
	if message == "" {
		message = "chat service temporarily unavailable"
	}
	return &APIError{Type: ErrorTypeUpstreamRejected, Message: message, StatusCode: statusCode}
}

// ErrNotFound creates a not-found failure.
func ErrNotFound(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}
