// Package errs builds coded, structured errors for the glue packages
// (MCP wiring, archive, configuration, CLI) on top of samber/oops.
package errs

import (
	"fmt"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeMCPConnectFailure  Code = "mcp.connect.failure"
	CodeMCPListFailure     Code = "mcp.list.failure"
	CodeMCPCallFailure     Code = "mcp.call.failure"
	CodeMCPToolError       Code = "mcp.call.tool_error"
	CodeMCPResourceFailure Code = "mcp.resource.read.failure"
	CodeMCPSpecInvalid     Code = "mcp.spec.invalid_input"
	CodeMCPCloseFailure    Code = "mcp.close.failure"

	CodeArchiveOpenFailure  Code = "archive.open.failure"
	CodeArchiveSaveFailure  Code = "archive.save.failure"
	CodeArchiveQueryFailure Code = "archive.query.failure"
	CodeArchiveNotFound     Code = "archive.run.not_found"
	CodeArchiveInvalidInput Code = "archive.save.invalid_input"

	CodeConfigLoadFailure  Code = "config.load.failure"
	CodeConfigParseInvalid Code = "config.parse.invalid_format"
	CodeConfigInvalidValue Code = "config.validate.invalid_value"

	CodeExecInvalidInput Code = "exec.command.invalid_input"
	CodeExecTimeout      Code = "exec.command.timeout"
	CodeExecFailure      Code = "exec.command.failure"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
)

// New creates a coded error with structured context given as key/value pairs.
func New(code Code, msg string, kv ...any) error {
	return oops.Code(string(code)).With(kv...).New(msg)
}

// Errorf creates a coded error with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return oops.Code(string(code)).Errorf(format, args...)
}

// Wrap annotates err with a code, message and key/value context. A nil err
// stays nil.
func Wrap(err error, code Code, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(string(code)).With(kv...).Wrapf(err, "%s", msg)
}

// Wrapf annotates err with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(string(code)).Wrapf(err, format, args...)
}

// CodeOf returns the code attached to err, or "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch c := oopsErr.Code().(type) {
	case string:
		return Code(c)
	case Code:
		return c
	case nil:
		return ""
	default:
		return Code(fmt.Sprint(c))
	}
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FieldsOf returns the structured context attached to err.
func FieldsOf(err error) map[string]any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}
