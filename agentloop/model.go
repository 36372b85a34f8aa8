package agentloop

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/martinemde/mcpagent/unifiedllm"
)

// ClientModel implements Model over a unifiedllm.Client.
type ClientModel struct {
	client      *unifiedllm.Client
	model       string
	provider    string
	tools       []unifiedllm.ToolDefinition
	temperature *float64
	maxTokens   *int
	logger      *slog.Logger
}

// ClientModelOption configures a ClientModel.
type ClientModelOption func(*ClientModel)

// WithProviderName pins requests to a registered provider.
func WithProviderName(name string) ClientModelOption {
	return func(m *ClientModel) { m.provider = name }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientModelOption {
	return func(m *ClientModel) { m.temperature = &t }
}

// WithMaxTokens bounds the length of each reply.
func WithMaxTokens(n int) ClientModelOption {
	return func(m *ClientModel) { m.maxTokens = &n }
}

// WithModelLogger sets the logger used for malformed tool arguments.
func WithModelLogger(l *slog.Logger) ClientModelOption {
	return func(m *ClientModel) { m.logger = l }
}

// NewClientModel returns a Model that sends the transcript to model through
// client.
func NewClientModel(client *unifiedllm.Client, model string, opts ...ClientModelOption) *ClientModel {
	m := &ClientModel{client: client, model: model}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// DefinitionSource is anything that can describe its tools to a model.
type DefinitionSource interface {
	Definitions() []ToolDefinition
}

// BindTools returns a copy of m that advertises the tools of src on every
// request.
func (m *ClientModel) BindTools(src DefinitionSource) *ClientModel {
	bound := *m
	defs := src.Definitions()
	bound.tools = make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		bound.tools[i] = unifiedllm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return &bound
}

// Invoke sends the transcript and converts the reply.
func (m *ClientModel) Invoke(ctx context.Context, transcript []Message) (Message, error) {
	req := unifiedllm.Request{
		Model:       m.model,
		Provider:    m.provider,
		Messages:    toUnified(transcript),
		Tools:       m.tools,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}
	if len(m.tools) > 0 {
		req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}

	resp, err := m.client.Complete(ctx, req)
	if err != nil {
		return Message{}, err
	}
	return m.fromUnified(ctx, resp), nil
}

func toUnified(transcript []Message) []unifiedllm.Message {
	out := make([]unifiedllm.Message, 0, len(transcript))
	for _, msg := range transcript {
		switch msg.Role {
		case RoleSystem:
			out = append(out, unifiedllm.SystemMessage(msg.Content))
		case RoleUser:
			out = append(out, unifiedllm.UserMessage(msg.Content))
		case RoleAssistant:
			um := unifiedllm.AssistantMessage(msg.Content)
			for _, inv := range msg.Invocations {
				args, err := json.Marshal(inv.Arguments)
				if err != nil || inv.Arguments == nil {
					args = json.RawMessage(`{}`)
				}
				um.Content = append(um.Content, unifiedllm.ToolCallPart(inv.ID, inv.Name, args))
			}
			out = append(out, um)
		case RoleTool:
			out = append(out, unifiedllm.ToolResultMessage(msg.CorrelationID, msg.Content, msg.IsError))
		}
	}
	return out
}

func (m *ClientModel) fromUnified(ctx context.Context, resp *unifiedllm.Response) Message {
	reply := Message{Role: RoleAssistant, Content: resp.Text()}
	for _, call := range resp.ToolCalls() {
		id := call.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		var args map[string]any
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				// The tool receives nil arguments; a ValidatingTool rejects them.
				m.logger.WarnContext(ctx, "malformed tool arguments", "tool", call.Name, "call_id", id, "error", err)
			}
		}
		reply.Invocations = append(reply.Invocations, ToolInvocation{ID: id, Name: call.Name, Arguments: args})
	}
	return reply
}
