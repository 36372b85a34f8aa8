package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		target    any
		retryable bool
	}{
		{400, new(*InvalidRequestError), false},
		{401, new(*AuthenticationError), false},
		{403, new(*AccessDeniedError), false},
		{404, new(*NotFoundError), false},
		{408, new(*RequestTimeoutError), true},
		{413, new(*ContextLengthError), false},
		{422, new(*InvalidRequestError), false},
		{429, new(*RateLimitError), true},
		{500, new(*ServerError), true},
		{502, new(*ServerError), true},
		{503, new(*ServerError), true},
		{504, new(*ServerError), true},
		{418, new(*ProviderError), true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ErrorFromStatusCode(tt.status, "test error", "openai", "", nil)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestErrorFromStatusCodeKeepsRetryAfter(t *testing.T) {
	after := 3.5
	err := ErrorFromStatusCode(429, "slow down", "anthropic", "rate_limited", &after)

	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	require.NotNil(t, rl.RetryAfter)
	assert.Equal(t, 3.5, *rl.RetryAfter)
	assert.Equal(t, "anthropic", rl.Provider)
	assert.Equal(t, "rate_limited", rl.ErrorCode)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"auth error", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"not found", &NotFoundError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"quota exceeded", &QuotaExceededError{}, false},
		{"content filter", &ContentFilterError{}, false},
		{"config error", &ConfigurationError{}, false},
		{"abort", &AbortError{}, false},
		{"invalid tool call", &InvalidToolCallError{}, false},
		{"rate limit", &RateLimitError{}, true},
		{"server error", &ServerError{}, true},
		{"network error", &NetworkError{}, true},
		{"timeout error", &RequestTimeoutError{}, true},
		{"plain provider error", &ProviderError{Retryable: false}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"unknown error", errors.New("unknown"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryableSeesThroughWrapping(t *testing.T) {
	auth := &AuthenticationError{ProviderError: ProviderError{SDKError: SDKError{Message: "bad key"}}}
	assert.False(t, IsRetryable(fmt.Errorf("complete: %w", auth)))

	server := &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "boom"}}}
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", server))))
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SDKError{Message: "wrapper", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "wrapper: root cause", err.Error())
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{
		SDKError:   SDKError{Message: "rate limit exceeded"},
		Provider:   "openai",
		StatusCode: 429,
		Retryable:  true,
	}
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "rate limit")
	assert.Contains(t, err.Error(), "status=429")
}
