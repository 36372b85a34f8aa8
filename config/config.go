// Package config builds the mcpagent command-line configuration. Each flag
// reads, in order of precedence, the command line, an environment variable,
// the YAML config file, and its default.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/mcpagent/agentloop"
	"github.com/martinemde/mcpagent/internal/errs"
	"github.com/martinemde/mcpagent/mcptools"
)

// EnvPrefix prefixes every environment variable the flags read.
const EnvPrefix = "MCPAGENT_"

// Configuration is the resolved CLI configuration.
type Configuration struct {
	ConfigFile string
	Model      *ModelConfig
	Loop       *LoopConfig
	Tools      *ToolsConfig
	Archive    string
	Verbose    bool
	Query      string
}

type ModelConfig struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type LoopConfig struct {
	System         string
	MaxIterations  int
	ParallelTools  bool
	MaxToolOutput  int
	LoopWindow     int
	ProjectContext bool
}

type ToolsConfig struct {
	Servers     []mcptools.ServerSpec
	AllowExec   bool
	ExecTimeout time.Duration
}

// File is a parsed YAML config file. Top-level keys match flag names; the
// "servers" key may also hold structured MCP server entries.
type File struct {
	Path    string
	values  map[string]any
	Servers []mcptools.ServerSpec
}

// YamlSource implements cli.ValueSource for one key of a YAML file.
type YamlSource struct {
	file *File
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	v, ok := y.file.values[y.key]
	if !ok || v == nil {
		return "", false
	}
	if slice, ok := v.([]any); ok {
		strs := make([]string, 0, len(slice))
		for _, item := range slice {
			strs = append(strs, fmt.Sprintf("%v", item))
		}
		return strings.Join(strs, ","), true
	}
	return fmt.Sprintf("%v", v), true
}

func (y *YamlSource) String() string   { return "yaml key " + y.key }
func (y *YamlSource) GoString() string { return "&YamlSource{key:" + y.key + "}" }

// ConfigPath finds the config file named by MCPAGENT_CONFIG or a --config
// argument. It runs before flag parsing so the file can feed flag values.
func ConfigPath(args []string) string {
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	for i, arg := range args {
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return ""
}

// LoadFile reads and parses a YAML config file. An empty path yields an
// empty File.
func LoadFile(path string) (*File, error) {
	f := &File{Path: path, values: map[string]any{}}
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigLoadFailure, "read config file", "path", path)
	}
	if err := yaml.Unmarshal(data, &f.values); err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigParseInvalid, "parse config file", "path", path)
	}
	if f.values == nil {
		f.values = map[string]any{}
	}

	var structured struct {
		Servers []mcptools.ServerSpec `yaml:"servers"`
	}
	if err := yaml.Unmarshal(data, &structured); err != nil {
		return nil, errs.Wrap(err, errs.CodeConfigParseInvalid, "parse servers", "path", path)
	}
	f.Servers = structured.Servers
	return f, nil
}

// Flags returns the command's flags, with file (which may be nil) as the
// YAML value source.
func Flags(file *File) []cli.Flag {
	if file == nil {
		file = &File{values: map[string]any{}}
	}
	src := func(key string) cli.ValueSourceChain {
		env := EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		return cli.ValueSourceChain{Chain: []cli.ValueSource{
			cli.EnvVar(env),
			&YamlSource{file: file, key: key},
		}}
	}

	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "read flag values from the named YAML file", Sources: cli.EnvVars(EnvPrefix + "CONFIG")},

		// Model
		&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Value: "openai", Usage: "LLM provider (openai, anthropic, groq, ollama, ...)", Sources: src("provider")},
		&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model ID; defaults to the provider's latest tool-capable model", Sources: src("model")},
		&cli.StringFlag{Name: "api-key", Usage: "provider API key; falls back to <PROVIDER>_API_KEY", Sources: src("api-key")},
		&cli.IntFlag{Name: "max-tokens", Value: 4096, Usage: "maximum tokens per model reply", Sources: src("max-tokens")},
		&cli.FloatFlag{Name: "temperature", Value: 0, Usage: "sampling temperature", Sources: src("temperature")},
		&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Value: 5 * time.Minute, Usage: "timeout for the whole run", Sources: src("timeout")},

		// Loop
		&cli.StringFlag{Name: "system", Aliases: []string{"s"}, Usage: "system prompt; defaults to the MCP servers' resources", Sources: src("system")},
		&cli.IntFlag{Name: "max-iterations", Aliases: []string{"n"}, Value: agentloop.DefaultMaxIterations, Usage: "maximum model invocations per run", Sources: src("max-iterations")},
		&cli.BoolFlag{Name: "parallel-tools", Usage: "run one turn's tool calls concurrently", Sources: src("parallel-tools")},
		&cli.IntFlag{Name: "max-tool-output", Value: agentloop.DefaultMaxToolOutputChars, Usage: "characters of tool output kept in the transcript; negative disables truncation", Sources: src("max-tool-output")},
		&cli.IntFlag{Name: "loop-window", Value: 6, Usage: "tool calls checked for a repeating pattern; 0 disables", Sources: src("loop-window")},
		&cli.BoolFlag{Name: "project-context", Usage: "add the working environment and AGENTS.md files to the system prompt", Sources: src("project-context")},

		// Tools
		&cli.StringSliceFlag{Name: "mcp-server", Aliases: []string{"S"}, Usage: "MCP server as name=command or name=url (repeatable)", Sources: src("mcp-server")},
		&cli.BoolFlag{Name: "allow-exec", Usage: "offer the exec_command tool to the model", Sources: src("allow-exec")},
		&cli.DurationFlag{Name: "exec-timeout", Value: 30 * time.Second, Usage: "default timeout for exec_command", Sources: src("exec-timeout")},

		// Output
		&cli.StringFlag{Name: "archive", Usage: "SQLite file to archive runs in", Sources: src("archive")},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable debug logging", Sources: src("verbose")},
	}
}

// FromCommand builds and validates the configuration of a parsed command.
// Structured servers from file come before --mcp-server entries.
func FromCommand(cmd *cli.Command, file *File) (*Configuration, error) {
	cfg := &Configuration{
		ConfigFile: cmd.String("config"),
		Model: &ModelConfig{
			Provider:    strings.ToLower(strings.TrimSpace(cmd.String("provider"))),
			Model:       cmd.String("model"),
			APIKey:      cmd.String("api-key"),
			MaxTokens:   int(cmd.Int("max-tokens")),
			Temperature: cmd.Float("temperature"),
			Timeout:     cmd.Duration("timeout"),
		},
		Loop: &LoopConfig{
			System:         cmd.String("system"),
			MaxIterations:  int(cmd.Int("max-iterations")),
			ParallelTools:  cmd.Bool("parallel-tools"),
			MaxToolOutput:  int(cmd.Int("max-tool-output")),
			LoopWindow:     int(cmd.Int("loop-window")),
			ProjectContext: cmd.Bool("project-context"),
		},
		Tools: &ToolsConfig{
			AllowExec:   cmd.Bool("allow-exec"),
			ExecTimeout: cmd.Duration("exec-timeout"),
		},
		Archive: cmd.String("archive"),
		Verbose: cmd.Bool("verbose"),
		Query:   strings.TrimSpace(strings.Join(cmd.Args().Slice(), " ")),
	}

	if cfg.Model.APIKey == "" && cfg.Model.Provider != "" {
		cfg.Model.APIKey = os.Getenv(strings.ToUpper(cfg.Model.Provider) + "_API_KEY")
	}

	if file != nil {
		cfg.Tools.Servers = append(cfg.Tools.Servers, file.Servers...)
	}
	for _, s := range cmd.StringSlice("mcp-server") {
		spec, err := mcptools.ParseServerSpec(s)
		if err != nil {
			return nil, err
		}
		cfg.Tools.Servers = append(cfg.Tools.Servers, spec)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that a query was given.
func (c *Configuration) Validate() error {
	switch {
	case c.Query == "":
		return errs.New(errs.CodeCLIInputInvalid, "a query is required")
	case c.Model.Provider == "":
		return errs.New(errs.CodeConfigInvalidValue, "provider is required")
	case c.Loop.MaxIterations < 1:
		return errs.New(errs.CodeConfigInvalidValue, "max-iterations must be at least 1", "max_iterations", c.Loop.MaxIterations)
	case c.Model.MaxTokens < 1:
		return errs.New(errs.CodeConfigInvalidValue, "max-tokens must be at least 1", "max_tokens", c.Model.MaxTokens)
	case c.Model.Temperature < 0 || c.Model.Temperature > 2:
		return errs.New(errs.CodeConfigInvalidValue, "temperature must be between 0 and 2", "temperature", c.Model.Temperature)
	case c.Model.Timeout <= 0:
		return errs.New(errs.CodeConfigInvalidValue, "timeout must be positive", "timeout", c.Model.Timeout)
	case c.Loop.LoopWindow < 0:
		return errs.New(errs.CodeConfigInvalidValue, "loop-window must not be negative", "loop_window", c.Loop.LoopWindow)
	}
	seen := make(map[string]bool)
	for _, s := range c.Tools.Servers {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return errs.New(errs.CodeConfigInvalidValue, "duplicate MCP server name", "server", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// PrintConfig writes the configuration with the API key masked.
func (c *Configuration) PrintConfig(w io.Writer) {
	fmt.Fprintf(w, "provider: %s\n", c.Model.Provider)
	fmt.Fprintf(w, "model: %s\n", c.Model.Model)
	fmt.Fprintf(w, "api-key: %s\n", maskSecret(c.Model.APIKey))
	fmt.Fprintf(w, "max-tokens: %d\n", c.Model.MaxTokens)
	fmt.Fprintf(w, "temperature: %g\n", c.Model.Temperature)
	fmt.Fprintf(w, "timeout: %s\n", c.Model.Timeout)
	fmt.Fprintf(w, "max-iterations: %d\n", c.Loop.MaxIterations)
	fmt.Fprintf(w, "parallel-tools: %t\n", c.Loop.ParallelTools)
	fmt.Fprintf(w, "max-tool-output: %d\n", c.Loop.MaxToolOutput)
	fmt.Fprintf(w, "loop-window: %d\n", c.Loop.LoopWindow)
	fmt.Fprintf(w, "allow-exec: %t\n", c.Tools.AllowExec)
	for _, s := range c.Tools.Servers {
		target := s.URL
		if target == "" {
			target = strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
		}
		fmt.Fprintf(w, "mcp-server: %s=%s\n", s.Name, target)
	}
	fmt.Fprintf(w, "archive: %s\n", c.Archive)
}

func maskSecret(s string) string {
	if len(s) <= 3 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-3) + s[len(s)-3:]
}
