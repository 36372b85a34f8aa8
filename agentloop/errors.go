package agentloop

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned by Run when its arguments violate the
// preconditions (for example a non-positive iteration budget).
var ErrInvalidInput = errors.New("agentloop: invalid input")

// ErrToolNotFound marks an invocation of a name the registry does not hold.
// The loop reports it to the model as a failed tool result.
var ErrToolNotFound = errors.New("tool not found")

// TransportError reports a failed model invocation. The loop does not retry
// it; Err is the model's error.
type TransportError struct {
	Iteration int
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agentloop: model invocation failed on iteration %d: %v", e.Iteration, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ToolExecutionError wraps a failure raised by a tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("Tool error (%s): %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
