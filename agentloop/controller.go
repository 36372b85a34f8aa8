package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxIterations is the iteration budget Ask uses when Config leaves
// MaxIterations unset.
const DefaultMaxIterations = 30

// Model is the inference endpoint. Invoke receives the full transcript and
// returns the assistant's reply, which may request tool invocations.
type Model interface {
	Invoke(ctx context.Context, transcript []Message) (Message, error)
}

// Status is the terminal state of a run.
type Status string

const (
	StatusComplete        Status = "complete"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusCanceled        Status = "canceled"
)

// Result is the outcome of a run that did not fail on transport.
type Result struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`
	// Content is the final answer when complete, the last assistant text
	// when the budget ran out, and empty when canceled.
	Content    string    `json:"content"`
	Transcript []Message `json:"transcript"`
	Iterations int       `json:"iterations"` // model invocations
	ToolCalls  int       `json:"tool_calls"` // tool results appended
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Cause is the context error of a canceled run.
	Cause error `json:"-"`
}

// Query returns the user query the run was started with.
func (r *Result) Query() string {
	if len(r.Transcript) > 1 {
		return r.Transcript[1].Content
	}
	return ""
}

// Config holds Controller options. The zero value is usable.
type Config struct {
	// MaxIterations is the budget used by Ask. Zero means DefaultMaxIterations.
	MaxIterations int
	// ParallelTools runs the invocations of one turn concurrently. Results
	// are still appended in request order.
	ParallelTools bool
	// MaxToolOutputChars bounds each tool result. Zero means
	// DefaultMaxToolOutputChars; negative disables truncation.
	MaxToolOutputChars int
	// MaxToolOutputLines applies a head/tail line limit after character
	// truncation. Zero disables it.
	MaxToolOutputLines int
	// LoopDetectionWindow is the number of recent invocations checked for a
	// repeating pattern. Zero disables detection.
	LoopDetectionWindow int
	Logger              *slog.Logger
	Events              *EventEmitter
}

// Controller runs the agent loop. It holds no per-run state, so one
// Controller may serve concurrent runs when its Model and tools are safe for
// concurrent use.
type Controller struct {
	model  Model
	config Config
	logger *slog.Logger
}

// NewController returns a controller that drives model.
func NewController(model Model, config Config) *Controller {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.MaxToolOutputChars == 0 {
		config.MaxToolOutputChars = DefaultMaxToolOutputChars
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{model: model, config: config, logger: logger}
}

// Ask runs the loop with the configured iteration budget.
func (c *Controller) Ask(ctx context.Context, systemPrompt, userQuery string, registry Registry) (*Result, error) {
	return c.Run(ctx, systemPrompt, userQuery, registry, c.config.MaxIterations)
}

// Run alternates model inference with tool dispatch until the model answers
// without requesting tools or maxIterations model calls have been made.
//
// Tool lookup and invocation failures are appended as failed tool results
// and the loop continues. A budget without a final answer ends with
// StatusBudgetExhausted, and cancellation with StatusCanceled; neither is an
// error. The only errors are ErrInvalidInput and *TransportError.
func (c *Controller) Run(ctx context.Context, systemPrompt, userQuery string, registry Registry, maxIterations int) (*Result, error) {
	if maxIterations < 1 {
		return nil, fmt.Errorf("%w: maxIterations must be at least 1, got %d", ErrInvalidInput, maxIterations)
	}
	if c.model == nil {
		return nil, fmt.Errorf("%w: controller has no model", ErrInvalidInput)
	}
	if registry == nil {
		registry = (*ToolRegistry)(nil)
	}

	r := &run{
		Controller: c,
		id:         uuid.NewString(),
		registry:   registry,
		transcript: NewTranscript(systemPrompt, userQuery),
		started:    time.Now(),
		seenIDs:    make(map[string]bool),
	}
	r.logger = c.logger.With("run", r.id)
	return r.loop(ctx, maxIterations)
}

// run is the state of a single Run call.
type run struct {
	*Controller
	id         string
	logger     *slog.Logger
	registry   Registry
	transcript *Transcript
	started    time.Time
	iterations int
	toolCalls  int
	seenIDs    map[string]bool
}

func (r *run) emit(kind EventKind, data map[string]any) {
	r.config.Events.Emit(r.id, kind, data)
}

func (r *run) loop(ctx context.Context, maxIterations int) (*Result, error) {
	r.emit(EventRunStart, map[string]any{"max_iterations": maxIterations})

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return r.canceled(ctx, err), nil
		}

		r.logger.DebugContext(ctx, "model invocation", "iteration", iteration, "messages", r.transcript.Len())
		r.emit(EventModelRequest, map[string]any{"iteration": iteration})

		reply, err := r.model.Invoke(ctx, r.transcript.Messages())
		r.iterations++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return r.canceled(ctx, ctxErr), nil
			}
			r.emit(EventError, map[string]any{"iteration": iteration, "error": err.Error()})
			return nil, &TransportError{Iteration: iteration, Err: err}
		}

		reply = r.normalize(reply)
		r.transcript.Append(reply)
		r.emit(EventModelResponse, map[string]any{
			"iteration":   iteration,
			"text":        reply.Content,
			"invocations": len(reply.Invocations),
		})

		if len(reply.Invocations) == 0 {
			r.logger.InfoContext(ctx, "run complete", "iterations", r.iterations, "tool_calls", r.toolCalls)
			return r.finish(StatusComplete, reply.Content, nil), nil
		}

		if canceled := r.dispatch(ctx, reply.Invocations); canceled != nil {
			return r.canceled(ctx, canceled), nil
		}
		// Cancellation during the turn's tool calls still ends the run canceled.
		if err := ctx.Err(); err != nil {
			return r.canceled(ctx, err), nil
		}

		if w := r.config.LoopDetectionWindow; w > 0 {
			if DetectLoop(r.transcript.messages, w) {
				r.logger.WarnContext(ctx, "repeating tool call pattern", "window", w, "iteration", iteration)
				r.emit(EventLoopDetection, map[string]any{"window": w, "iteration": iteration})
			}
		}
	}

	last, _ := r.transcript.LastAssistant()
	r.logger.InfoContext(ctx, "iteration budget exhausted", "iterations", r.iterations, "tool_calls", r.toolCalls)
	r.emit(EventBudgetExhausted, map[string]any{"iterations": r.iterations})
	return r.finish(StatusBudgetExhausted, last.Content, nil), nil
}

// normalize forces the assistant role and gives every invocation an ID that
// is unique within the run.
func (r *run) normalize(reply Message) Message {
	reply = reply.clone()
	reply.Role = RoleAssistant
	reply.CorrelationID = ""
	reply.IsError = false
	for i := range reply.Invocations {
		id := reply.Invocations[i].ID
		if id == "" || r.seenIDs[id] {
			id = "call_" + uuid.NewString()
		}
		r.seenIDs[id] = true
		reply.Invocations[i].ID = id
	}
	return reply
}

// dispatch executes one turn's invocations and appends their results in
// request order. It returns the context error if the run was canceled
// before every invocation was dispatched.
func (r *run) dispatch(ctx context.Context, invocations []ToolInvocation) error {
	if r.config.ParallelTools && len(invocations) > 1 {
		results := make([]Message, len(invocations))
		var wg sync.WaitGroup
		for i, inv := range invocations {
			wg.Add(1)
			go func(idx int, inv ToolInvocation) {
				defer wg.Done()
				results[idx] = r.execute(ctx, inv)
			}(i, inv)
		}
		wg.Wait()
		for _, m := range results {
			r.appendResult(m)
		}
		return nil
	}

	for _, inv := range invocations {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.appendResult(r.execute(ctx, inv))
	}
	return nil
}

func (r *run) appendResult(m Message) {
	r.transcript.Append(m)
	r.toolCalls++
}

// execute handles lookup, invocation and truncation for one invocation and
// returns its tool-result message.
func (r *run) execute(ctx context.Context, inv ToolInvocation) Message {
	tool, ok := r.registry.Get(inv.Name)
	if !ok {
		r.logger.WarnContext(ctx, "unknown tool", "tool", inv.Name, "call_id", inv.ID)
		r.emit(EventUnknownTool, map[string]any{"tool": inv.Name, "call_id": inv.ID})
		return ToolResultMessage(inv.ID, fmt.Sprintf("%s: %s", ErrToolNotFound, inv.Name), true)
	}

	r.logger.DebugContext(ctx, "tool call", "tool", inv.Name, "call_id", inv.ID)
	r.emit(EventToolCallStart, map[string]any{"tool": inv.Name, "call_id": inv.ID, "arguments": inv.Arguments})

	start := time.Now()
	output, err := invokeTool(ctx, tool, inv)
	elapsed := time.Since(start)

	if err != nil {
		execErr := &ToolExecutionError{Tool: inv.Name, Err: err}
		r.logger.WarnContext(ctx, "tool failed", "tool", inv.Name, "call_id", inv.ID, "elapsed", elapsed, "error", err)
		r.emit(EventToolCallEnd, map[string]any{"tool": inv.Name, "call_id": inv.ID, "error": err.Error()})
		return ToolResultMessage(inv.ID, execErr.Error(), true)
	}

	// The event carries the untruncated output.
	r.emit(EventToolCallEnd, map[string]any{"tool": inv.Name, "call_id": inv.ID, "output": output})
	return ToolResultMessage(inv.ID, truncateToolOutput(output, r.config.MaxToolOutputChars, r.config.MaxToolOutputLines), false)
}

// invokeTool runs the tool, turning a panic into an error.
func invokeTool(ctx context.Context, tool Tool, inv ToolInvocation) (output string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return tool.Invoke(ctx, cloneArgs(inv.Arguments))
}

func (r *run) canceled(ctx context.Context, cause error) *Result {
	r.logger.InfoContext(ctx, "run canceled", "iterations", r.iterations, "cause", cause)
	r.emit(EventCanceled, map[string]any{"iterations": r.iterations})
	return r.finish(StatusCanceled, "", cause)
}

func (r *run) finish(status Status, content string, cause error) *Result {
	res := &Result{
		RunID:      r.id,
		Status:     status,
		Content:    content,
		Transcript: r.transcript.Messages(),
		Iterations: r.iterations,
		ToolCalls:  r.toolCalls,
		StartedAt:  r.started,
		FinishedAt: time.Now(),
		Cause:      cause,
	}
	r.emit(EventRunEnd, map[string]any{"status": string(status), "iterations": r.iterations, "tool_calls": r.toolCalls})
	return res
}
