package unifiedllm

import (
	"context"
	"errors"
	"fmt"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64 // seconds
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type InvalidToolCallError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// classified is implemented by every error in the hierarchy.
type classified interface {
	error
	isRetryable() bool
}

func (e *ProviderError) isRetryable() bool       { return e.Retryable }
func (e *AuthenticationError) isRetryable() bool { return false }
func (e *AccessDeniedError) isRetryable() bool   { return false }
func (e *NotFoundError) isRetryable() bool       { return false }
func (e *InvalidRequestError) isRetryable() bool { return false }
func (e *ContentFilterError) isRetryable() bool  { return false }
func (e *ContextLengthError) isRetryable() bool  { return false }
func (e *QuotaExceededError) isRetryable() bool  { return false }
func (e *RateLimitError) isRetryable() bool      { return true }
func (e *ServerError) isRetryable() bool         { return true }

func (e *RequestTimeoutError) isRetryable() bool  { return true }
func (e *NetworkError) isRetryable() bool         { return true }
func (e *AbortError) isRetryable() bool           { return false }
func (e *InvalidToolCallError) isRetryable() bool { return false }
func (e *ConfigurationError) isRetryable() bool   { return false }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable reports whether err is safe to retry. Errors wrapped with %w
// are classified by the innermost hierarchy member. Context cancellation is
// never retryable; unknown errors are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c classified
	if errors.As(err, &c) {
		return c.isRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
