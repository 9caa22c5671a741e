package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies provider errors for retry decisions.
type ErrorKind int

const (
	// ErrKindUnknown covers errors the adapter could not classify.
	ErrKindUnknown ErrorKind = iota
	// ErrKindRateLimited is the only retryable kind.
	ErrKindRateLimited
	// ErrKindAuthFailed covers invalid or missing credentials.
	ErrKindAuthFailed
	// ErrKindNetwork covers transport failures before a response arrived.
	ErrKindNetwork
	// ErrKindMalformed covers responses the adapter could not decode,
	// including roles the conversion layer does not map.
	ErrKindMalformed
)

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindAuthFailed:
		return "auth_failed"
	case ErrKindNetwork:
		return "network_failure"
	case ErrKindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// APIError is the error type surfaced by provider adapters. The rendered
// message always contains the HTTP status (when known) so that callers
// without access to the typed error can still classify rate limits.
type APIError struct {
	Kind     ErrorKind
	Status   int
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// NewAPIError builds a typed provider error with the kind derived from the
// HTTP status code.
func NewAPIError(provider string, status int, message string) *APIError {
	return &APIError{
		Kind:     kindForStatus(status, message),
		Status:   status,
		Provider: provider,
		Message:  message,
	}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(provider string, err error) *APIError {
	return &APIError{
		Kind:     ErrKindNetwork,
		Provider: provider,
		Message:  err.Error(),
	}
}

// NewMalformedError wraps a decode or conversion failure.
func NewMalformedError(provider string, err error) *APIError {
	return &APIError{
		Kind:     ErrKindMalformed,
		Provider: provider,
		Message:  err.Error(),
	}
}

func kindForStatus(status int, message string) ErrorKind {
	switch {
	case status == 429:
		return ErrKindRateLimited
	case status == 401 || status == 403:
		return ErrKindAuthFailed
	case status >= 500:
		return ErrKindNetwork
	case status > 0:
		if messageLooksRateLimited(message) {
			return ErrKindRateLimited
		}
		return ErrKindUnknown
	default:
		return ErrKindUnknown
	}
}

// Classify returns the kind of a provider error. Typed errors are preferred;
// plain errors fall back to substring checks so decorated errors from
// unknown layers still classify.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	msg := strings.ToLower(err.Error())
	switch {
	case messageLooksRateLimited(msg):
		return ErrKindRateLimited
	case strings.Contains(msg, "status 401") || strings.Contains(msg, "status 403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return ErrKindAuthFailed
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "network"):
		return ErrKindNetwork
	default:
		return ErrKindUnknown
	}
}

// IsRateLimited reports whether the error should be retried with backoff.
func IsRateLimited(err error) bool {
	return Classify(err) == ErrKindRateLimited
}

func messageLooksRateLimited(message string) bool {
	msg := strings.ToLower(message)
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}
