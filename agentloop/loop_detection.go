package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// invocationSignature computes a deterministic signature for a tool call
// (name + hash of arguments). encoding/json sorts map keys, so equal
// argument maps hash equally.
func invocationSignature(inv ToolInvocation) string {
	data, _ := json.Marshal(inv.Arguments)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", inv.Name, h[:8])
}

// recentSignatures returns the signatures of the last count invocations in
// the history, oldest first.
func recentSignatures(history []Message, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		m := history[i]
		if m.Role != RoleAssistant {
			continue
		}
		for j := len(m.Invocations) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, invocationSignature(m.Invocations[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last windowSize tool invocations follow a
// repeating pattern of length 1, 2, or 3.
func DetectLoop(history []Message, windowSize int) bool {
	if windowSize <= 1 {
		return false
	}
	sigs := recentSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || patternLen == windowSize {
			continue
		}
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i++ {
			if sigs[i] != sigs[i%patternLen] {
				allMatch = false
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
