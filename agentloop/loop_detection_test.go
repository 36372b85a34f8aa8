package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func historyOf(invs ...ToolInvocation) []Message {
	msgs := []Message{SystemMessage("s"), UserMessage("u")}
	for _, inv := range invs {
		msgs = append(msgs, AssistantMessage("", inv), ToolResultMessage(inv.ID, "r", false))
	}
	return msgs
}

func inv(name string, args map[string]any) ToolInvocation {
	return ToolInvocation{ID: name, Name: name, Arguments: args}
}

func TestDetectLoop(t *testing.T) {
	a := inv("a", map[string]any{"x": 1.0})
	b := inv("b", nil)
	c := inv("c", nil)

	tests := []struct {
		name    string
		history []Message
		window  int
		want    bool
	}{
		{"single repeat", historyOf(a, a, a, a), 4, true},
		{"alternating pair", historyOf(a, b, a, b), 4, true},
		{"triple cycle", historyOf(a, b, c, a, b, c), 6, true},
		{"no pattern", historyOf(a, b, c, b), 4, false},
		{"too short", historyOf(a, a), 4, false},
		{"disabled", historyOf(a, a, a), 0, false},
		{"window of one", historyOf(a), 1, false},
		{"non-dividing window skips pattern", historyOf(a, b, a, b, a), 5, false},
		{"only the tail counts", historyOf(b, c, a, a, a), 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLoop(tt.history, tt.window))
		})
	}
}

func TestDetectLoopComparesArguments(t *testing.T) {
	h := historyOf(
		inv("a", map[string]any{"page": 1.0}),
		inv("a", map[string]any{"page": 2.0}),
		inv("a", map[string]any{"page": 3.0}),
	)
	assert.False(t, DetectLoop(h, 3))
}

func TestDetectLoopSeesInvocationsWithinOneTurn(t *testing.T) {
	a := inv("a", nil)
	h := []Message{
		SystemMessage("s"), UserMessage("u"),
		AssistantMessage("", a, a, a),
	}
	assert.True(t, DetectLoop(h, 3))
}

func TestInvocationSignatureIgnoresKeyOrder(t *testing.T) {
	x := ToolInvocation{Name: "t", Arguments: map[string]any{"a": 1.0, "b": "two"}}
	y := ToolInvocation{Name: "t", Arguments: map[string]any{"b": "two", "a": 1.0}}
	assert.Equal(t, invocationSignature(x), invocationSignature(y))
	assert.NotEqual(t, invocationSignature(x), invocationSignature(ToolInvocation{Name: "u", Arguments: x.Arguments}))
}
