package agentloop

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"
)

// Tool is an executable capability the model can invoke by name.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON Schema of the arguments object. The loop never
	// inspects it; it is forwarded to the model.
	Schema() map[string]any
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Registry resolves tool names for a run.
type Registry interface {
	Get(name string) (Tool, bool)
}

// ToolDefinition describes a tool for the LLM (serializable metadata).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefinitionOf returns the serializable metadata of t.
func DefinitionOf(t Tool) ToolDefinition {
	params := t.Schema()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: params}
}

// ToolFunc adapts a plain function into a Tool.
type ToolFunc struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

// NewToolFunc returns a Tool backed by fn.
func NewToolFunc(name, description string, schema map[string]any, fn func(ctx context.Context, args map[string]any) (string, error)) *ToolFunc {
	return &ToolFunc{name: name, description: description, schema: schema, fn: fn}
}

func (t *ToolFunc) Name() string           { return t.name }
func (t *ToolFunc) Description() string    { return t.description }
func (t *ToolFunc) Schema() map[string]any { return t.schema }

func (t *ToolFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

// ToolRegistry manages tool registration and lookup. It is safe for
// concurrent use and a nil *ToolRegistry behaves as an empty registry.
type ToolRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewToolRegistry creates a registry holding tools. Later tools replace
// earlier ones with the same name.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, DefinitionOf(tool))
	}
	slices.SortFunc(defs, func(a, b ToolDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clone returns a registry holding the same tools.
func (r *ToolRegistry) Clone() *ToolRegistry {
	clone := NewToolRegistry()
	if r == nil {
		return clone
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, tool := range r.tools {
		clone.tools[name] = tool
	}
	return clone
}

// MergeFrom copies all tools from other into this registry.
// Existing tools with the same name are overwritten (latest-wins).
func (r *ToolRegistry) MergeFrom(other *ToolRegistry) {
	if other == nil || other == r {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, tool := range other.tools {
		r.tools[name] = tool
	}
}

// StringArg extracts a string argument.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument. JSON numbers decode as float64, so
// integral floats are accepted.
func IntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
