package mcptools

import (
	"io"
	"net/url"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/martinemde/mcpagent/internal/errs"
)

// ServerSpec describes how to reach one MCP server. Exactly one of Command
// and URL is set.
type ServerSpec struct {
	Name string `yaml:"name"`
	// Command and Args start a stdio server.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Env is appended to the server process environment as KEY=VALUE pairs.
	Env []string `yaml:"env"`
	// URL reaches a streamable HTTP server, or an SSE server when SSE is set.
	URL string `yaml:"url"`
	SSE bool   `yaml:"sse"`
}

// ParseServerSpec parses a command-line server description of the form
// "name=command arg..." or "name=https://host/mcp". An "sse+" prefix on the
// URL scheme selects the SSE transport.
func ParseServerSpec(s string) (ServerSpec, error) {
	name, target, ok := strings.Cut(s, "=")
	name, target = strings.TrimSpace(name), strings.TrimSpace(target)
	if !ok || name == "" || target == "" {
		return ServerSpec{}, errs.New(errs.CodeMCPSpecInvalid,
			"server must be given as name=command or name=url", "spec", s)
	}

	spec := ServerSpec{Name: name}
	lowered := strings.ToLower(target)
	if rest, ok := strings.CutPrefix(lowered, "sse+"); ok {
		spec.SSE = true
		target = target[len("sse+"):]
		lowered = rest
	}

	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		u, err := url.Parse(target)
		if err != nil || u.Host == "" {
			return ServerSpec{}, errs.New(errs.CodeMCPSpecInvalid, "invalid server url", "spec", s)
		}
		spec.URL = u.String()
		return spec, nil
	}
	if spec.SSE {
		return ServerSpec{}, errs.New(errs.CodeMCPSpecInvalid, "sse requires an http(s) url", "spec", s)
	}

	fields := strings.Fields(target)
	spec.Command = fields[0]
	spec.Args = fields[1:]
	return spec, nil
}

// Validate reports whether the spec names exactly one way to connect.
func (s ServerSpec) Validate() error {
	switch {
	case s.Name == "":
		return errs.New(errs.CodeMCPSpecInvalid, "server name is required")
	case s.Command == "" && s.URL == "":
		return errs.New(errs.CodeMCPSpecInvalid, "server needs a command or url", "server", s.Name)
	case s.Command != "" && s.URL != "":
		return errs.New(errs.CodeMCPSpecInvalid, "server has both a command and a url", "server", s.Name)
	}
	return nil
}

// transport builds the client transport. A stdio server's stderr goes to
// stderr.
func (s ServerSpec) transport(stderr io.Writer) (mcp.Transport, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch {
	case s.URL != "" && s.SSE:
		return &mcp.SSEClientTransport{Endpoint: s.URL}, nil
	case s.URL != "":
		return &mcp.StreamableClientTransport{Endpoint: s.URL}, nil
	}
	// #nosec G204 -- the command comes from operator configuration
	cmd := exec.Command(s.Command, s.Args...)
	cmd.Stderr = stderr
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}
