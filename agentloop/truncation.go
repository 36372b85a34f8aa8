package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxToolOutputChars bounds a tool result entering the transcript
// when Config leaves MaxToolOutputChars unset.
const DefaultMaxToolOutputChars = 30000

// TruncateOutput keeps the head and tail of output, each at most maxChars/2
// bytes, with a marker saying how much was removed from the middle. Both cuts
// fall on rune boundaries.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	head := half
	for head > 0 && !utf8.RuneStart(output[head]) {
		head--
	}
	tail := len(output) - half
	for tail < len(output) && !utf8.RuneStart(output[tail]) {
		tail++
	}
	return output[:head] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need to see specific parts, re-run the tool with more targeted arguments.]\n\n", tail-head) +
		output[tail:]
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncateToolOutput applies character truncation, then line truncation.
func truncateToolOutput(output string, maxChars, maxLines int) string {
	return TruncateLines(TruncateOutput(output, maxChars), maxLines)
}
