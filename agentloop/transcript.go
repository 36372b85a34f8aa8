package agentloop

import (
	"fmt"
	"maps"
	"slices"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolInvocation is a model-requested call to a tool. ID is unique within a
// transcript and links the invocation to its result.
type ToolInvocation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one entry in a transcript. Invocations is only set for the
// assistant role; CorrelationID and IsError only for the tool role.
type Message struct {
	Role          Role             `json:"role"`
	Content       string           `json:"content"`
	Invocations   []ToolInvocation `json:"invocations,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	IsError       bool             `json:"is_error,omitempty"`
}

// SystemMessage returns a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage returns a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage returns an assistant message requesting the given
// invocations, if any.
func AssistantMessage(text string, invocations ...ToolInvocation) Message {
	return Message{Role: RoleAssistant, Content: text, Invocations: invocations}
}

// ToolResultMessage returns the result of the invocation identified by
// correlationID.
func ToolResultMessage(correlationID, content string, isError bool) Message {
	return Message{Role: RoleTool, Content: content, CorrelationID: correlationID, IsError: isError}
}

// clone returns a deep copy so that later mutation by the producer can not
// reach a message already appended to a transcript.
func (m Message) clone() Message {
	if len(m.Invocations) == 0 {
		m.Invocations = nil
		return m
	}
	invs := make([]ToolInvocation, len(m.Invocations))
	for i, inv := range m.Invocations {
		inv.Arguments = cloneArgs(inv.Arguments)
		invs[i] = inv
	}
	m.Invocations = invs
	return m
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneArgs(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Transcript is the append-only conversation history of one run.
type Transcript struct {
	messages []Message
}

// NewTranscript seeds a transcript with the system prompt and user query.
func NewTranscript(systemPrompt, userQuery string) *Transcript {
	return &Transcript{messages: []Message{SystemMessage(systemPrompt), UserMessage(userQuery)}}
}

// Append adds a copy of m to the end of the transcript.
func (t *Transcript) Append(m Message) {
	t.messages = append(t.messages, m.clone())
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the messages in order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// LastAssistant returns the most recent assistant message.
func (t *Transcript) LastAssistant() (Message, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == RoleAssistant {
			return t.messages[i].clone(), true
		}
	}
	return Message{}, false
}

// Validate checks the correlation invariant: every tool result answers
// exactly one earlier invocation of the most recent assistant message, no
// invocation is answered twice, invocation IDs are unique, and an assistant
// message only follows once every earlier invocation has its result.
// Invocations of the final assistant message may still be pending.
func (t *Transcript) Validate() error {
	return ValidateMessages(t.messages)
}

// ValidateMessages applies the Transcript.Validate checks to a message slice.
func ValidateMessages(messages []Message) error {
	seen := make(map[string]bool)
	pending := make(map[string]bool)
	answered := make(map[string]bool)

	for i, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser:
			if len(m.Invocations) > 0 || m.CorrelationID != "" {
				return fmt.Errorf("message %d: %s message carries tool fields", i, m.Role)
			}
		case RoleAssistant:
			if len(pending) > 0 {
				return fmt.Errorf("message %d: assistant turn before results for %v", i, sortedKeys(pending))
			}
			for _, inv := range m.Invocations {
				if inv.ID == "" {
					return fmt.Errorf("message %d: invocation of %q has no id", i, inv.Name)
				}
				if seen[inv.ID] {
					return fmt.Errorf("message %d: duplicate invocation id %q", i, inv.ID)
				}
				seen[inv.ID] = true
				pending[inv.ID] = true
			}
		case RoleTool:
			id := m.CorrelationID
			switch {
			case answered[id]:
				return fmt.Errorf("message %d: invocation %q answered twice", i, id)
			case !pending[id]:
				return fmt.Errorf("message %d: result %q matches no pending invocation", i, id)
			}
			delete(pending, id)
			answered[id] = true
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	return slices.Sorted(maps.Keys(m))
}
