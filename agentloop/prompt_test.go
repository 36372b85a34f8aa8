package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathHierarchy(t *testing.T) {
	root := filepath.FromSlash("/a")
	assert.Equal(t, []string{root}, pathHierarchy(root, root))
	assert.Equal(t,
		[]string{root, filepath.FromSlash("/a/b"), filepath.FromSlash("/a/b/c")},
		pathHierarchy(root, filepath.FromSlash("/a/b/c")))
	assert.Equal(t, []string{filepath.FromSlash("/x/y")}, pathHierarchy(root, filepath.FromSlash("/x/y")))
}

func TestDiscoverProjectDocs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectDocName), []byte("Use tabs."), 0o644))

	docs := DiscoverProjectDocs(dir)
	assert.Contains(t, docs, "# AGENTS.md (from ")
	assert.Contains(t, docs, "Use tabs.")

	assert.Empty(t, DiscoverProjectDocs(t.TempDir()))
}

func TestDiscoverProjectDocsCapsSize(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", maxProjectDocBytes+100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectDocName), []byte(big), 0o644))

	docs := DiscoverProjectDocs(dir)
	assert.Contains(t, docs, "[Project instructions truncated at 32KB]")
	assert.Less(t, len(docs), maxProjectDocBytes+200)
}

func TestEnvironmentContext(t *testing.T) {
	dir := t.TempDir()
	ctx := EnvironmentContext(dir, "gpt-4o")
	assert.True(t, strings.HasPrefix(ctx, "<environment>\n"))
	assert.True(t, strings.HasSuffix(ctx, "</environment>"))
	assert.Contains(t, ctx, "Working directory: "+dir)
	assert.Contains(t, ctx, "Model: gpt-4o")
	assert.NotContains(t, EnvironmentContext(dir, ""), "Model:")
}

func TestComposeSystemPrompt(t *testing.T) {
	assert.Equal(t, "base\n\nextra", ComposeSystemPrompt("  base ", "", "\n", "extra"))
	assert.Empty(t, ComposeSystemPrompt())
}
