package mcptools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/internal/errs"
)

// Tool is an MCP server tool exposed as an agentloop.Tool.
type Tool struct {
	server  string
	session *mcp.ClientSession
	tool    *mcp.Tool
	schema  map[string]any
}

var _ agentloop.Tool = (*Tool)(nil)

func newTool(server string, session *mcp.ClientSession, t *mcp.Tool) *Tool {
	return &Tool{server: server, session: session, tool: t, schema: schemaMap(t.InputSchema)}
}

func (t *Tool) Name() string           { return t.tool.Name }
func (t *Tool) Description() string    { return t.tool.Description }
func (t *Tool) Schema() map[string]any { return t.schema }

// Server returns the name of the server that provides the tool.
func (t *Tool) Server() string { return t.server }

// Invoke calls the tool on its server. A result flagged as an error becomes
// a Go error carrying the result text.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := t.session.CallTool(ctx, &mcp.CallToolParams{Name: t.tool.Name, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errs.Wrap(err, errs.CodeMCPCallFailure, "call MCP tool", "tool", t.tool.Name, "server", t.server)
	}

	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error without content"
		}
		return "", errs.New(errs.CodeMCPToolError, text, "tool", t.tool.Name, "server", t.server)
	}
	return text, nil
}

// contentText concatenates text parts. Other content is rendered as JSON.
func contentText(content []mcp.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
			continue
		}
		if data, err := json.Marshal(c); err == nil {
			sb.Write(data)
		}
	}
	return sb.String()
}

// schemaMap converts an MCP input schema to a plain JSON object.
func schemaMap(schema any) map[string]any {
	switch s := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return s
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
