// Command mcpagent answers a query by letting a language model call the tools
// of one or more MCP servers.
//
//	mcpagent -S users="node server.mjs" "Who is user 002?"
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/archive"
	"github.com/martinemde/mcpagent/builtin"
	"github.com/martinemde/mcpagent/config"
	"github.com/martinemde/mcpagent/internal/errs"
	"github.com/martinemde/mcpagent/mcptools"
	"github.com/martinemde/mcpagent/unifiedllm"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK              = 0
	exitFailure         = 1
	exitBudgetExhausted = 2
)

// modelFactory builds the model for a run. Tests replace it.
var modelFactory = newClientModel

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args and executes one query. The answer goes to stdout, and
// progress and logs go to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	file, err := config.LoadFile(config.ConfigPath(args))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	code := exitOK
	cmd := &cli.Command{
		Name:      "mcpagent",
		Usage:     "answer a query with the tools of MCP servers",
		Version:   version,
		ArgsUsage: "<query>",
		Flags:     config.Flags(file),
		Writer:    stdout,
		ErrWriter: stderr,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.FromCommand(cmd, file)
			if err != nil {
				return err
			}
			logger := newLogger(stderr, cfg.Verbose)
			if cfg.Verbose {
				cfg.PrintConfig(stderr)
			}
			code = execute(ctx, cfg, logger, stdout, stderr)
			return nil
		},
	}
	if err := cmd.Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return code
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}

// execute connects the tool servers, runs the loop and reports the outcome.
func execute(ctx context.Context, cfg *config.Configuration, logger *slog.Logger, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(ctx, cfg.Model.Timeout)
	defer cancel()

	managerOpts := []mcptools.Option{mcptools.WithLogger(logger)}
	if cfg.Verbose {
		managerOpts = append(managerOpts, mcptools.WithServerStderr(stderr))
	}
	manager := mcptools.NewManager(managerOpts...)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("closing MCP servers", "error", err)
		}
	}()

	if err := manager.ConnectAll(ctx, cfg.Tools.Servers); err != nil {
		return fail(stderr, err)
	}
	registry, err := manager.Registry(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	if cfg.Tools.AllowExec {
		registerExec(registry, cfg.Tools, logger)
	}

	system, err := systemPrompt(ctx, cfg, manager)
	if err != nil {
		return fail(stderr, err)
	}

	model, err := modelFactory(cfg.Model, logger)
	if err != nil {
		return fail(stderr, err)
	}

	events := agentloop.NewEventEmitter(256)
	printed := make(chan struct{})
	go func() {
		printEvents(stderr, events.Events(), cfg.Verbose)
		close(printed)
	}()

	controller := agentloop.NewController(model.BindTools(registry), agentloop.Config{
		MaxIterations:       cfg.Loop.MaxIterations,
		ParallelTools:       cfg.Loop.ParallelTools,
		MaxToolOutputChars:  cfg.Loop.MaxToolOutput,
		LoopDetectionWindow: cfg.Loop.LoopWindow,
		Logger:              logger,
		Events:              events,
	})
	res, err := controller.Ask(ctx, system, cfg.Query, registry)
	events.Close()
	<-printed
	if err != nil {
		return fail(stderr, err)
	}

	if cfg.Archive != "" {
		if err := archiveRun(context.WithoutCancel(ctx), cfg.Archive, res, logger); err != nil {
			logger.Error("archiving run failed", "run", res.RunID, "error", err)
		}
	}

	if res.Content != "" {
		fmt.Fprintln(stdout, res.Content)
	}
	switch res.Status {
	case agentloop.StatusComplete:
		return exitOK
	case agentloop.StatusBudgetExhausted:
		fmt.Fprintf(stderr, "Stopped after %d iterations without a final answer.\n", res.Iterations)
		return exitBudgetExhausted
	default:
		fmt.Fprintf(stderr, "Canceled: %v\n", res.Cause)
		return exitFailure
	}
}

// systemPrompt is --system when set and the servers' resource texts
// otherwise, optionally followed by environment and project context.
func systemPrompt(ctx context.Context, cfg *config.Configuration, manager *mcptools.Manager) (string, error) {
	system := cfg.Loop.System
	if system == "" {
		var err error
		if system, err = manager.ResourceContext(ctx); err != nil {
			return "", err
		}
	}
	if !cfg.Loop.ProjectContext {
		return system, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errs.Wrap(err, errs.CodeCLISetupFailure, "resolve working directory")
	}
	return agentloop.ComposeSystemPrompt(
		system,
		agentloop.EnvironmentContext(wd, cfg.Model.Model),
		agentloop.DiscoverProjectDocs(wd),
	), nil
}

// registerExec adds the exec_command tool unless an MCP server already
// provides a tool by that name.
func registerExec(registry *agentloop.ToolRegistry, tools *config.ToolsConfig, logger *slog.Logger) {
	if _, taken := registry.Get(builtin.ExecCommandName); taken {
		logger.Warn("MCP tool shadows the built-in exec tool", "tool", builtin.ExecCommandName)
		return
	}
	exec := builtin.NewExecCommand(builtin.ExecOptions{DefaultTimeout: tools.ExecTimeout})
	if vt, err := agentloop.NewValidatingTool(exec); err == nil {
		registry.Register(vt)
		return
	}
	registry.Register(exec)
}

func newClientModel(cfg *config.ModelConfig, logger *slog.Logger) (*agentloop.ClientModel, error) {
	opts := []unifiedllm.GollmAdapterOption{unifiedllm.WithAPIKey(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, unifiedllm.WithModel(cfg.Model))
	}
	adapter, err := unifiedllm.NewGollmAdapter(cfg.Provider, opts...)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeCLISetupFailure, "create model client", "provider", cfg.Provider)
	}
	client := unifiedllm.NewClient(
		unifiedllm.WithProvider(adapter.Name(), adapter),
		unifiedllm.WithMiddleware(
			unifiedllm.LoggingMiddleware(logger),
			unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()),
		),
	)
	return agentloop.NewClientModel(client, adapter.Model(),
		agentloop.WithProviderName(adapter.Name()),
		agentloop.WithTemperature(cfg.Temperature),
		agentloop.WithMaxTokens(cfg.MaxTokens),
		agentloop.WithModelLogger(logger),
	), nil
}

func archiveRun(ctx context.Context, path string, res *agentloop.Result, logger *slog.Logger) error {
	store, err := archive.Open(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, res)
}

func fail(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	return exitFailure
}
