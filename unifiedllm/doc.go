// Package unifiedllm is a provider-agnostic request/response boundary over
// github.com/teilomillet/gollm.
//
// A Client routes each Request to a registered ProviderAdapter and runs it
// through middleware:
//
//	adapter, err := unifiedllm.NewGollmAdapter("openai",
//	    unifiedllm.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    unifiedllm.WithModel("gpt-4o-mini"))
//	if err != nil {
//	    return err
//	}
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", adapter),
//	    unifiedllm.WithMiddleware(
//	        unifiedllm.LoggingMiddleware(logger),
//	        unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()),
//	    ),
//	)
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "gpt-4o-mini",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//
// There is no package-level default client. Errors returned by adapters
// belong to the hierarchy rooted at SDKError; IsRetryable classifies them.
package unifiedllm
