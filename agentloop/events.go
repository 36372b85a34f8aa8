package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart        EventKind = "run_start"
	EventRunEnd          EventKind = "run_end"
	EventModelRequest    EventKind = "model_request"
	EventModelResponse   EventKind = "model_response"
	EventToolCallStart   EventKind = "tool_call_start"
	EventToolCallEnd     EventKind = "tool_call_end"
	EventUnknownTool     EventKind = "unknown_tool"
	EventLoopDetection   EventKind = "loop_detection"
	EventBudgetExhausted EventKind = "budget_exhausted"
	EventCanceled        EventKind = "canceled"
	EventError           EventKind = "error"
)

// Event is a typed event emitted by the agent loop.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers run events to the host application via a channel.
// One emitter may be shared by concurrent runs; events carry the run ID.
type EventEmitter struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event to the channel. Events are dropped when the emitter
// is nil, closed, or its buffer is full; Emit never blocks the loop.
func (e *EventEmitter) Emit(runID string, kind EventKind, data map[string]any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
