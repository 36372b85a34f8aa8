package unifiedllm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo("gpt-4o-mini")
	require.NotNil(t, info)
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, 128000, info.ContextWindow)
	assert.True(t, info.SupportsTools)

	info = GetModelInfo("sonnet")
	require.NotNil(t, info, "lookup by alias")
	assert.Equal(t, "claude-sonnet-4-5", info.ID)

	assert.Nil(t, GetModelInfo("nonexistent-model"))
}

func TestListModels(t *testing.T) {
	assert.Len(t, ListModels(""), len(Models))

	openai := ListModels("openai")
	assert.Len(t, openai, 3)
	for _, m := range openai {
		assert.Equal(t, "openai", m.Provider)
	}
	assert.Len(t, ListModels("anthropic"), 2)
	assert.Len(t, ListModels("ollama"), 2)
	assert.Empty(t, ListModels("nonexistent"))
}

func TestListModelsReturnsCopy(t *testing.T) {
	all := ListModels("")
	all[0].ID = "mutated"
	assert.NotEqual(t, "mutated", Models[0].ID)
}

func TestGetLatestModel(t *testing.T) {
	info := GetLatestModel("openai", "")
	require.NotNil(t, info)
	assert.Equal(t, "gpt-4o", info.ID)

	info = GetLatestModel("openai", "reasoning")
	require.NotNil(t, info)
	assert.Equal(t, "o3-mini", info.ID)

	info = GetLatestModel("ollama", "tools")
	require.NotNil(t, info)
	assert.Equal(t, "llama3.1", info.ID)

	assert.Nil(t, GetLatestModel("ollama", "reasoning"))
	assert.Nil(t, GetLatestModel("nonexistent", ""))
}

func TestModelInfoFields(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Models {
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.Provider, m.ID)
		assert.NotEmpty(t, m.DisplayName, m.ID)
		assert.Positive(t, m.ContextWindow, m.ID)
		assert.False(t, seen[m.ID], "duplicate model %s", m.ID)
		seen[m.ID] = true
	}
}
