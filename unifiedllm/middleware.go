package unifiedllm

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs each provider call at debug level and failures at
// warn level. A nil logger uses slog.Default().
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		logger.DebugContext(ctx, "llm request",
			"provider", req.Provider,
			"model", req.Model,
			"messages", len(req.Messages),
			"tools", len(req.Tools))

		resp, err := next(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			logger.WarnContext(ctx, "llm request failed",
				"provider", req.Provider,
				"model", req.Model,
				"elapsed", elapsed,
				"retryable", IsRetryable(err),
				"error", err)
			return nil, err
		}

		logger.DebugContext(ctx, "llm response",
			"provider", resp.Provider,
			"model", resp.Model,
			"finish", resp.FinishReason.Reason,
			"tool_calls", len(resp.ToolCalls()),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"elapsed", elapsed)
		return resp, nil
	}
}
