package unifiedllm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGollmAdapterUnknownProviderWithoutModel(t *testing.T) {
	_, err := NewGollmAdapter("nonexistent")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGollmAdapterName(t *testing.T) {
	adapter, err := NewGollmAdapter("openai", WithAPIKey("test-key-not-real"), WithModel("gpt-4o-mini"))
	if err != nil {
		t.Skipf("gollm refused offline construction: %v", err)
	}
	assert.Equal(t, "openai", adapter.Name())
}

func TestGollmAdapterModel(t *testing.T) {
	adapter := NewGollmAdapterFromLLM("openai", "gpt-4o-mini", nil)
	assert.Equal(t, "gpt-4o-mini", adapter.Model())
}

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		msg    string
		target any
	}{
		{"401 Unauthorized", new(*AuthenticationError)},
		{"invalid api key", new(*AuthenticationError)},
		{"403 Forbidden", new(*AccessDeniedError)},
		{"404 not found", new(*NotFoundError)},
		{"429 rate limit exceeded", new(*RateLimitError)},
		{"insufficient quota", new(*QuotaExceededError)},
		{"context length exceeded", new(*ContextLengthError)},
		{"500 internal server error", new(*ServerError)},
		{"timeout waiting for response", new(*RequestTimeoutError)},
		{"content filter triggered", new(*ContentFilterError)},
		{"dial tcp: connection refused", new(*NetworkError)},
		{"something unknown", new(*ProviderError)},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cause := errors.New(tt.msg)
			err := adapter.translateError(cause)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestParseToolCallsFunctionCallBlocks(t *testing.T) {
	text := `Let me look that up.
<function_call>{"name": "lookup", "arguments": {"q": "golang"}}</function_call>
<function_call>{"name": "weather", "arguments": "{\"city\":\"SF\"}"}</function_call>`

	calls, rest := parseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "Let me look that up.", rest)

	assert.Equal(t, "lookup", calls[0].Name)
	assert.JSONEq(t, `{"q":"golang"}`, string(calls[0].Arguments))
	assert.Regexp(t, `^call_`, calls[0].ID)

	assert.Equal(t, "weather", calls[1].Name)
	assert.JSONEq(t, `{"city":"SF"}`, string(calls[1].Arguments), "string-encoded arguments are decoded")
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

func TestParseToolCallsJSONArray(t *testing.T) {
	calls, rest := parseToolCalls(`Calling: [{"name":"lookup","arguments":{"q":"x"}},{"id":"abc","name":"noop"}]`)
	require.Len(t, calls, 2)
	assert.Equal(t, "Calling:", rest)
	assert.Equal(t, "lookup", calls[0].Name)
	assert.Equal(t, "abc", calls[1].ID)
	assert.JSONEq(t, `{}`, string(calls[1].Arguments))
}

func TestParseToolCallsPlainText(t *testing.T) {
	calls, rest := parseToolCalls("  The answer is 4.  ")
	assert.Empty(t, calls)
	assert.Equal(t, "The answer is 4.", rest)
}

func TestParseToolCallsMalformed(t *testing.T) {
	calls, rest := parseToolCalls(`<function_call>{not json}</function_call>`)
	assert.Empty(t, calls)
	assert.Equal(t, `<function_call>{not json}</function_call>`, rest)
}

func TestBuildResponse(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai", model: "gpt-4o-mini"}

	resp := adapter.buildResponse(Request{Messages: []Message{UserMessage("hi")}},
		`<function_call>{"name":"lookup","arguments":{}}</function_call>`)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "tool_calls", resp.FinishReason.Reason)
	assert.Empty(t, resp.Text())
	require.Len(t, resp.ToolCalls(), 1)
	assert.Regexp(t, `^resp_`, resp.ID)

	resp = adapter.buildResponse(Request{Model: "gpt-4o"}, "4")
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason.Reason)
	assert.Equal(t, "4", resp.Text())
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{
		UserMessage("Hello world, this is a test message."),
		ToolResultMessage("c1", "a fairly long tool output string", false),
	}}
	assert.Greater(t, estimateTokens(req), 8)
	assert.Equal(t, 10, estimateTokens(Request{}))
}
