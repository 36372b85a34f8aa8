package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/mcpagent/agentloop"
)

const previewChars = 120

// printEvents writes one progress line per tool call until events is closed.
// Verbose adds model turns and tool output previews.
func printEvents(w io.Writer, events <-chan agentloop.Event, verbose bool) {
	for ev := range events {
		if line := formatEvent(ev, verbose); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func formatEvent(ev agentloop.Event, verbose bool) string {
	switch ev.Kind {
	case agentloop.EventToolCallStart:
		args, _ := json.Marshal(ev.Data["arguments"])
		return fmt.Sprintf("-> %v %s", ev.Data["tool"], preview(string(args)))
	case agentloop.EventToolCallEnd:
		if msg, ok := ev.Data["error"].(string); ok {
			return fmt.Sprintf("<- %v failed: %s", ev.Data["tool"], preview(msg))
		}
		if verbose {
			out, _ := ev.Data["output"].(string)
			return fmt.Sprintf("<- %v %s", ev.Data["tool"], preview(out))
		}
	case agentloop.EventUnknownTool:
		return fmt.Sprintf("!! unknown tool %v", ev.Data["tool"])
	case agentloop.EventLoopDetection:
		return fmt.Sprintf("!! repeating tool calls detected at iteration %v", ev.Data["iteration"])
	case agentloop.EventModelRequest:
		if verbose {
			return fmt.Sprintf("== iteration %v", ev.Data["iteration"])
		}
	}
	return ""
}

// preview flattens s to one line and shortens it to previewChars runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewChars {
		return string(r[:previewChars]) + "..."
	}
	return s
}
