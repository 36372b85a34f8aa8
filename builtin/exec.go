// Package builtin provides tools that run in-process rather than behind an
// MCP server.
package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/internal/errs"
)

// ExecCommandName is the tool name the model sees.
const ExecCommandName = "exec_command"

// ExecOptions configures the exec_command tool.
type ExecOptions struct {
	// WorkingDir is where commands run. Empty means the process directory.
	WorkingDir string
	// DefaultTimeout applies when the model gives no timeout_ms.
	DefaultTimeout time.Duration
	// MaxTimeout caps any timeout the model asks for.
	MaxTimeout time.Duration
	// Env is added on top of the filtered process environment.
	Env map[string]string
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecCommand runs shell commands for the model.
type ExecCommand struct {
	opts ExecOptions
}

var _ agentloop.Tool = (*ExecCommand)(nil)

// NewExecCommand returns the exec_command tool.
func NewExecCommand(opts ExecOptions) *ExecCommand {
	if opts.WorkingDir == "" {
		opts.WorkingDir, _ = os.Getwd()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 10 * time.Minute
	}
	if opts.DefaultTimeout > opts.MaxTimeout {
		opts.DefaultTimeout = opts.MaxTimeout
	}
	return &ExecCommand{opts: opts}
}

func (e *ExecCommand) Name() string { return ExecCommandName }

func (e *ExecCommand) Description() string {
	return "Run a shell command and return its combined output. " +
		"Non-zero exit codes and timeouts are reported as failures."
}

func (e *ExecCommand) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command line to run with the system shell.",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Directory to run in, relative to the configured working directory.",
			},
			"timeout_ms": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Timeout in milliseconds.",
			},
		},
		"required": []any{"command"},
	}
}

// Invoke runs the command and returns its output.
func (e *ExecCommand) Invoke(ctx context.Context, args map[string]any) (string, error) {
	command, ok := agentloop.StringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return "", errs.New(errs.CodeExecInvalidInput, "command is required")
	}

	timeout := e.timeout(args)

	dir := e.opts.WorkingDir
	if wd, ok := agentloop.StringArg(args, "working_dir"); ok && wd != "" {
		if filepath.IsAbs(wd) {
			dir = wd
		} else {
			dir = filepath.Join(e.opts.WorkingDir, wd)
		}
	}

	res, err := e.Run(ctx, command, dir, timeout)
	if err != nil {
		return "", err
	}

	out := res.Output()
	switch {
	case res.TimedOut:
		return "", errs.New(errs.CodeExecTimeout,
			fmt.Sprintf("command timed out after %s\n%s", timeout, out),
			"command", command, "timeout", timeout)
	case res.ExitCode != 0:
		return "", errs.New(errs.CodeExecFailure,
			fmt.Sprintf("exit code %d\n%s", res.ExitCode, out),
			"command", command, "exit_code", res.ExitCode)
	}
	return out, nil
}

// timeout is the model's timeout_ms capped at MaxTimeout, or the default.
func (e *ExecCommand) timeout(args map[string]any) time.Duration {
	ms, ok := agentloop.IntArg(args, "timeout_ms")
	if !ok || ms <= 0 {
		return e.opts.DefaultTimeout
	}
	// Compare in milliseconds so huge values cannot overflow a Duration.
	if int64(ms) >= e.opts.MaxTimeout.Milliseconds() {
		return e.opts.MaxTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// Run executes command in dir through the system shell with the filtered
// environment.
func (e *ExecCommand) Run(ctx context.Context, command, dir string, timeout time.Duration) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, flag, command)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second

	env := filterEnvironment(os.Environ())
	for k, v := range e.opts.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, errs.Wrap(err, errs.CodeExecFailure, "start command", "command", command, "dir", dir)
		}
	}
	return result, nil
}

// sensitiveEnvSuffixes mark variables that never reach a spawned command.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// filterEnvironment drops variables whose names end in a sensitive suffix.
func filterEnvironment(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if isSensitiveEnvVar(name) {
			continue
		}
		filtered = append(filtered, kv)
	}
	return filtered
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}
