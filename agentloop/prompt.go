package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ProjectDocName is the instruction file DiscoverProjectDocs looks for.
const ProjectDocName = "AGENTS.md"

const maxProjectDocBytes = 32 * 1024

// EnvironmentContext describes where the agent runs, for inclusion in a
// system prompt.
func EnvironmentContext(workingDir, model string) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	if branch := gitOutput(workingDir, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads every AGENTS.md from the git root (or
// workingDir outside a repository) down to workingDir, outermost first.
// The combined text is capped at 32KB.
func DiscoverProjectDocs(workingDir string) string {
	root := gitOutput(workingDir, "rev-parse", "--show-toplevel")
	if root == "" {
		root = workingDir
	}

	var docs []string
	total := 0
	for _, dir := range pathHierarchy(root, workingDir) {
		content, err := os.ReadFile(filepath.Join(dir, ProjectDocName))
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - total
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", ProjectDocName, dir, text))
		total += len(text)
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// ComposeSystemPrompt joins the non-empty sections with blank lines.
func ComposeSystemPrompt(sections ...string) string {
	var parts []string
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// pathHierarchy returns the directories from root down to target, inclusive.
// A target outside root yields only target.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{target}
	}
	dirs := []string{root}
	if rel == "." {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
