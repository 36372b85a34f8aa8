package unifiedllm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	lastReq  Request
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Message: Message{
				Role:    RoleAssistant,
				Content: []ContentPart{TextPart(text)},
			},
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func hi() Request {
	return Request{Model: "test-model", Messages: []Message{UserMessage("Hi")}}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	resp, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Text())
	assert.Equal(t, "test-provider", resp.Provider)
	assert.Equal(t, "test-provider", mock.lastReq.Provider, "resolved provider is stamped on the request")
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")

	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	req := hi()
	req.Provider = "anthropic"
	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Anthropic response", resp.Text())

	resp, err = client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "OpenAI response", resp.Text())
}

func TestClientRoutesByCatalogWithoutDefault(t *testing.T) {
	client := &Client{providers: map[string]ProviderAdapter{
		"openai":    newMockAdapter("openai", "from openai"),
		"anthropic": newMockAdapter("anthropic", "from anthropic"),
	}}

	resp, err := client.Complete(context.Background(), Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{UserMessage("Hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "from anthropic", resp.Text())
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), hi())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestClientUnregisteredProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	req := hi()
	req.Provider = "gemini"
	_, err := client.Complete(context.Background(), req)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "gemini")
}

func TestClientMiddlewareOrder(t *testing.T) {
	mock := newMockAdapter("test", "response")
	var order []int

	mw := func(n int) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, n)
			resp, err := next(ctx, req)
			order = append(order, -n)
			return resp, err
		}
	}

	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(mw(1), mw(2)),
	)

	_, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, -2, -1}, order)
}

func TestClientMiddlewareCanRewriteRequest(t *testing.T) {
	mock := newMockAdapter("test", "response")
	mw := func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		req.Metadata = map[string]string{"run": "r1"}
		return next(ctx, req)
	}

	client := NewClient(WithProvider("test", mock), WithMiddleware(mw))
	_, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "r1", mock.lastReq.Metadata["run"])
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("dynamic", newMockAdapter("dynamic", "dynamic response"))

	resp, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "dynamic response", resp.Text())
}

func TestClientAutoSingleProviderDefault(t *testing.T) {
	client := NewClient(WithProvider("only", newMockAdapter("only", "only response")))

	resp, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "only response", resp.Text())
}

func TestClientClose(t *testing.T) {
	mock := newMockAdapter("test", "x")
	client := NewClient(WithProvider("test", mock))
	require.NoError(t, client.Close())
	assert.True(t, mock.closed)
}

// flakyAdapter fails a fixed number of times before succeeding.
type flakyAdapter struct {
	failures int32
	calls    atomic.Int32
	err      error
	ok       *Response
}

func (f *flakyAdapter) Name() string { return "flaky" }

func (f *flakyAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.ok, nil
}

func TestRetryMiddleware(t *testing.T) {
	adapter := &flakyAdapter{
		failures: 2,
		err:      &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "503"}}},
		ok:       newMockAdapter("flaky", "finally").response,
	}
	client := NewClient(
		WithProvider("flaky", adapter),
		WithMiddleware(RetryMiddleware(fastPolicy(3))),
	)

	resp, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Text())
	assert.Equal(t, int32(3), adapter.calls.Load())
}

func TestRetryMiddlewareStopsOnAuthError(t *testing.T) {
	adapter := &flakyAdapter{
		failures: 10,
		err:      &AuthenticationError{ProviderError: ProviderError{SDKError: SDKError{Message: "bad key"}}},
	}
	client := NewClient(
		WithProvider("flaky", adapter),
		WithMiddleware(RetryMiddleware(fastPolicy(3))),
	)

	_, err := client.Complete(context.Background(), hi())
	var auth *AuthenticationError
	require.ErrorAs(t, err, &auth)
	assert.Equal(t, int32(1), adapter.calls.Load())
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := NewClient(
		WithProvider("test", newMockAdapter("test", "ok")),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	_, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "llm request")
	assert.Contains(t, out, "llm response")
	assert.Contains(t, out, "model=test-model")
}

func TestLoggingMiddlewareLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	mock := newMockAdapter("test", "")
	mock.err = errors.New("connection reset")
	client := NewClient(
		WithProvider("test", mock),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	_, err := client.Complete(context.Background(), hi())
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "llm request failed")
	assert.Contains(t, out, "connection reset")
	assert.NotContains(t, out, "llm response")
}
