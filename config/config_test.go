package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/internal/errs"
	"github.com/martinemde/mcpagent/mcptools"
)

// parse runs a command with the config flags and returns the configuration
// built by its action.
func parse(t *testing.T, file *File, args ...string) (*Configuration, error) {
	t.Helper()
	var cfg *Configuration
	cmd := &cli.Command{
		Name:  "mcpagent",
		Flags: Flags(file),
		Action: func(_ context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = FromCommand(cmd, file)
			return err
		},
	}
	err := cmd.Run(context.Background(), append([]string{"mcpagent"}, args...))
	return cfg, err
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcpagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := parse(t, nil, "what", "is", "2+2?")
	require.NoError(t, err)

	assert.Equal(t, "what is 2+2?", cfg.Query)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "sk-env", cfg.Model.APIKey)
	assert.Equal(t, 4096, cfg.Model.MaxTokens)
	assert.Equal(t, 5*time.Minute, cfg.Model.Timeout)
	assert.Equal(t, agentloop.DefaultMaxIterations, cfg.Loop.MaxIterations)
	assert.Equal(t, agentloop.DefaultMaxToolOutputChars, cfg.Loop.MaxToolOutput)
	assert.Equal(t, 6, cfg.Loop.LoopWindow)
	assert.False(t, cfg.Tools.AllowExec)
	assert.Empty(t, cfg.Tools.Servers)
}

func TestFlagsOverride(t *testing.T) {
	cfg, err := parse(t, nil,
		"--provider", "Anthropic",
		"--model", "sonnet",
		"--api-key", "k",
		"--max-iterations", "3",
		"--temperature", "0.5",
		"--parallel-tools",
		"--allow-exec",
		"--mcp-server", "users=node server.mjs",
		"--mcp-server", "remote=https://example.com/mcp",
		"--archive", "runs.db",
		"query",
	)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "sonnet", cfg.Model.Model)
	assert.Equal(t, 3, cfg.Loop.MaxIterations)
	assert.Equal(t, 0.5, cfg.Model.Temperature)
	assert.True(t, cfg.Loop.ParallelTools)
	assert.True(t, cfg.Tools.AllowExec)
	assert.Equal(t, "runs.db", cfg.Archive)
	assert.Equal(t, []mcptools.ServerSpec{
		{Name: "users", Command: "node", Args: []string{"server.mjs"}},
		{Name: "remote", URL: "https://example.com/mcp"},
	}, cfg.Tools.Servers)
}

func TestEnvBeatsYAML(t *testing.T) {
	path := writeFile(t, "model: from-yaml\nmax-iterations: 7\nverbose: true\n")
	file, err := LoadFile(path)
	require.NoError(t, err)
	t.Setenv("MCPAGENT_MODEL", "from-env")

	cfg, err := parse(t, file, "q")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.Model)
	assert.Equal(t, 7, cfg.Loop.MaxIterations)
	assert.True(t, cfg.Verbose)

	cfg, err = parse(t, file, "--model", "from-flag", "q")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Model.Model)
}

func TestYAMLServers(t *testing.T) {
	path := writeFile(t, `
mcp-server:
  - docs=docs-server --stdio
servers:
  - name: users
    command: node
    args: [server.mjs]
    env: [DEBUG=1]
  - name: remote
    url: http://localhost:8080/sse
    sse: true
`)
	file, err := LoadFile(path)
	require.NoError(t, err)

	cfg, err := parse(t, file, "q")
	require.NoError(t, err)
	require.Len(t, cfg.Tools.Servers, 3)
	assert.Equal(t, mcptools.ServerSpec{Name: "users", Command: "node", Args: []string{"server.mjs"}, Env: []string{"DEBUG=1"}}, cfg.Tools.Servers[0])
	assert.Equal(t, mcptools.ServerSpec{Name: "remote", URL: "http://localhost:8080/sse", SSE: true}, cfg.Tools.Servers[1])
	assert.Equal(t, "docs", cfg.Tools.Servers[2].Name)
}

func TestValidation(t *testing.T) {
	_, err := parse(t, nil)
	assert.True(t, errs.HasCode(err, errs.CodeCLIInputInvalid))

	_, err = parse(t, nil, "--max-iterations", "0", "q")
	assert.True(t, errs.HasCode(err, errs.CodeConfigInvalidValue))

	_, err = parse(t, nil, "--temperature", "3", "q")
	assert.True(t, errs.HasCode(err, errs.CodeConfigInvalidValue))

	_, err = parse(t, nil, "--mcp-server", "a=x", "--mcp-server", "a=y", "q")
	assert.True(t, errs.HasCode(err, errs.CodeConfigInvalidValue))

	_, err = parse(t, nil, "--mcp-server", "broken", "q")
	assert.True(t, errs.HasCode(err, errs.CodeMCPSpecInvalid))
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.HasCode(err, errs.CodeConfigLoadFailure))

	_, err = LoadFile(writeFile(t, "model: [unterminated"))
	assert.True(t, errs.HasCode(err, errs.CodeConfigParseInvalid))

	f, err := LoadFile("")
	require.NoError(t, err)
	assert.Empty(t, f.Servers)

	f, err = LoadFile(writeFile(t, ""))
	require.NoError(t, err)
	assert.NotNil(t, f.values)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "a.yaml", ConfigPath([]string{"mcpagent", "--config", "a.yaml", "q"}))
	assert.Equal(t, "b.yaml", ConfigPath([]string{"mcpagent", "--config=b.yaml"}))
	assert.Equal(t, "c.yaml", ConfigPath([]string{"mcpagent", "-c", "c.yaml"}))
	assert.Empty(t, ConfigPath([]string{"mcpagent", "q"}))

	t.Setenv("MCPAGENT_CONFIG", "env.yaml")
	assert.Equal(t, "env.yaml", ConfigPath([]string{"mcpagent", "--config", "a.yaml"}))
}

func TestYamlSourceLookup(t *testing.T) {
	f := &File{values: map[string]any{"list": []any{"a", 2}, "n": 3, "empty": nil}}
	v, ok := (&YamlSource{file: f, key: "list"}).Lookup()
	assert.True(t, ok)
	assert.Equal(t, "a,2", v)

	v, ok = (&YamlSource{file: f, key: "n"}).Lookup()
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = (&YamlSource{file: f, key: "empty"}).Lookup()
	assert.False(t, ok)
	_, ok = (&YamlSource{file: f, key: "missing"}).Lookup()
	assert.False(t, ok)
}

func TestPrintConfigMasksKey(t *testing.T) {
	cfg, err := parse(t, nil, "--api-key", "sk-abcdef", "--mcp-server", "users=node server.mjs", "q")
	require.NoError(t, err)

	var buf bytes.Buffer
	cfg.PrintConfig(&buf)
	assert.Contains(t, buf.String(), "api-key: ******def\n")
	assert.NotContains(t, buf.String(), "sk-abcdef")
	assert.Contains(t, buf.String(), "mcp-server: users=node server.mjs\n")
}
