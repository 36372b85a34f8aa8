// Package mcptools connects to MCP servers and exposes their tools and
// resources to the agent loop.
package mcptools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/internal/errs"
)

// ClientName and ClientVersion identify this client to MCP servers.
const (
	ClientName    = "mcpagent"
	ClientVersion = "0.1.0"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithServerStderr sends the stderr of stdio servers to w. The default
// discards it.
func WithServerStderr(w io.Writer) Option {
	return func(m *Manager) { m.stderr = w }
}

// WithoutValidation skips JSON Schema validation of tool arguments in
// Registry.
func WithoutValidation() Option {
	return func(m *Manager) { m.validate = false }
}

type connection struct {
	name    string
	session *mcp.ClientSession
}

// Manager owns the sessions of one or more MCP servers. Servers are kept in
// connection order, which decides which server wins a tool name.
type Manager struct {
	client   *mcp.Client
	logger   *slog.Logger
	stderr   io.Writer
	validate bool

	mu    sync.Mutex
	conns []connection
}

// NewManager returns a manager with no connections.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		client:   mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: ClientVersion}, nil),
		stderr:   io.Discard,
		validate: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Connect starts or dials the server described by spec.
func (m *Manager) Connect(ctx context.Context, spec ServerSpec) error {
	transport, err := spec.transport(m.stderr)
	if err != nil {
		return err
	}
	return m.ConnectTransport(ctx, spec.Name, transport)
}

// ConnectAll connects every spec in order, stopping at the first failure.
func (m *Manager) ConnectAll(ctx context.Context, specs []ServerSpec) error {
	for _, spec := range specs {
		if err := m.Connect(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// ConnectTransport connects to a server over a caller-supplied transport.
func (m *Manager) ConnectTransport(ctx context.Context, name string, transport mcp.Transport) error {
	if m.connected(name) {
		return errs.New(errs.CodeMCPSpecInvalid, "server name already connected", "server", name)
	}

	session, err := m.client.Connect(ctx, transport, nil)
	if err != nil {
		return errs.Wrap(err, errs.CodeMCPConnectFailure, "connect to MCP server", "server", name)
	}

	// A concurrent connect may have claimed the name while this one dialed.
	m.mu.Lock()
	if m.connectedLocked(name) {
		m.mu.Unlock()
		_ = session.Close()
		return errs.New(errs.CodeMCPSpecInvalid, "server name already connected", "server", name)
	}
	m.conns = append(m.conns, connection{name: name, session: session})
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "connected to MCP server", "server", name)
	return nil
}

func (m *Manager) connected(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedLocked(name)
}

func (m *Manager) connectedLocked(name string) bool {
	for _, c := range m.conns {
		if c.name == name {
			return true
		}
	}
	return false
}

// Servers returns the names of the connected servers in connection order.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.conns))
	for i, c := range m.conns {
		names[i] = c.name
	}
	return names
}

func (m *Manager) connections() []connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]connection(nil), m.conns...)
}

// Tools lists the tools of every server. When two servers offer the same
// name the first server's tool is kept and the later one is skipped.
func (m *Manager) Tools(ctx context.Context) ([]*Tool, error) {
	var tools []*Tool
	owner := make(map[string]string)

	for _, c := range m.connections() {
		count := 0
		for t, err := range c.session.Tools(ctx, nil) {
			if err != nil {
				return nil, errs.Wrap(err, errs.CodeMCPListFailure, "list MCP tools", "server", c.name)
			}
			if first, dup := owner[t.Name]; dup {
				m.logger.WarnContext(ctx, "duplicate MCP tool skipped", "tool", t.Name, "server", c.name, "kept", first)
				continue
			}
			owner[t.Name] = c.name
			tools = append(tools, newTool(c.name, c.session, t))
			count++
		}
		m.logger.DebugContext(ctx, "loaded MCP tools", "server", c.name, "count", count)
	}
	return tools, nil
}

// Registry lists the tools of every server into a registry for the agent
// loop. Tools whose schema resolves are wrapped in an
// agentloop.ValidatingTool unless validation is disabled.
func (m *Manager) Registry(ctx context.Context) (*agentloop.ToolRegistry, error) {
	tools, err := m.Tools(ctx)
	if err != nil {
		return nil, err
	}
	reg := agentloop.NewToolRegistry()
	for _, t := range tools {
		if !m.validate {
			reg.Register(t)
			continue
		}
		vt, err := agentloop.NewValidatingTool(t)
		if err != nil {
			m.logger.WarnContext(ctx, "tool schema does not resolve; arguments are not validated",
				"tool", t.Name(), "server", t.Server(), "error", err)
			reg.Register(t)
			continue
		}
		reg.Register(vt)
	}
	return reg, nil
}

// ResourceContext reads every resource of every server and concatenates
// their text contents, for use as system prompt context. Servers that do not
// offer resources are skipped.
func (m *Manager) ResourceContext(ctx context.Context) (string, error) {
	var parts []string
	for _, c := range m.connections() {
		if ir := c.session.InitializeResult(); ir != nil && ir.Capabilities != nil && ir.Capabilities.Resources == nil {
			continue
		}
		for res, err := range c.session.Resources(ctx, nil) {
			if err != nil {
				return "", errs.Wrap(err, errs.CodeMCPListFailure, "list MCP resources", "server", c.name)
			}
			read, err := c.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: res.URI})
			if err != nil {
				return "", errs.Wrap(err, errs.CodeMCPResourceFailure, "read MCP resource", "server", c.name, "uri", res.URI)
			}
			for _, content := range read.Contents {
				if content != nil && content.Text != "" {
					parts = append(parts, content.Text)
				}
			}
			m.logger.DebugContext(ctx, "loaded MCP resource", "server", c.name, "uri", res.URI)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Close closes every session and forgets the servers.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	var all []error
	for _, c := range conns {
		if err := c.session.Close(); err != nil {
			all = append(all, errs.Wrap(err, errs.CodeMCPCloseFailure, "close MCP session", "server", c.name))
		}
	}
	return errors.Join(all...)
}
