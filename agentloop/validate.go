package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ValidatingTool checks arguments against the wrapped tool's JSON Schema
// before invoking it. A validation failure is returned as an invocation
// error, so the model sees it as a failed tool result.
type ValidatingTool struct {
	Tool
	resolved *jsonschema.Resolved
}

// NewValidatingTool resolves tool's schema. A tool without a schema accepts
// any arguments.
func NewValidatingTool(tool Tool) (*ValidatingTool, error) {
	vt := &ValidatingTool{Tool: tool}
	raw := tool.Schema()
	if raw == nil {
		return vt, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("tool %s: encode schema: %w", tool.Name(), err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("tool %s: decode schema: %w", tool.Name(), err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("tool %s: resolve schema: %w", tool.Name(), err)
	}
	vt.resolved = resolved
	return vt, nil
}

// Invoke validates args and then calls the wrapped tool.
func (v *ValidatingTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if v.resolved != nil {
		instance := args
		if instance == nil {
			instance = map[string]any{}
		}
		if err := v.resolved.Validate(instance); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	return v.Tool.Invoke(ctx, args)
}
