// Package agentloop implements a tool-calling agent loop.
//
// A Controller alternates model inference with tool dispatch. Each Run seeds
// a transcript with a system prompt and a user query, invokes the Model, and
// executes every tool invocation the reply requests, appending one tool
// result per invocation in request order. The run ends when the model answers
// without requesting tools, when the iteration budget is spent, or when the
// context is canceled.
//
// Tool lookup failures and tool errors never abort a run. They are appended
// as failed tool results so the model can recover. Only an invalid budget and
// a failed model invocation (*TransportError) are returned as errors.
//
// # Architecture
//
//   - Controller: the loop. It holds no per-run state and may serve
//     concurrent runs.
//   - Transcript: the append-only message history of one run, with
//     Validate for the invocation/result correlation rules.
//   - Model: the inference endpoint. ClientModel adapts a unifiedllm.Client.
//   - Tool and Registry: named capabilities. ToolRegistry is a concurrent
//     map; ValidatingTool checks arguments against the tool's JSON Schema.
//   - EventEmitter: a typed event stream for host applications.
//
// # Quick Start
//
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter))
//	tools := agentloop.NewToolRegistry(lookup)
//	model := agentloop.NewClientModel(client, "gpt-4o").BindTools(tools)
//
//	ctrl := agentloop.NewController(model, agentloop.Config{})
//	res, err := ctrl.Run(ctx, "You are a helpful assistant.", "What is 2+2?", tools, 10)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Status, res.Content)
package agentloop
