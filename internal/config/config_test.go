package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyasuu/llm-playground/internal/tools"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.7, cfg.SharedSettings.Temperature)
	assert.Equal(t, 2048, cfg.SharedSettings.MaxTokens)
	assert.Equal(t, 2000, cfg.SharedSettings.RetryDelayMS)
	assert.NotEmpty(t, cfg.SystemPrompt)
	assert.Contains(t, cfg.Providers, cfg.CurrentProvider)

	names := make(map[string]bool)
	for _, ft := range cfg.FunctionTools {
		names[ft.Name] = true
	}
	assert.True(t, names["fetch"], "fetch tool should ship by default")
	assert.True(t, names["get_weather"], "get_weather tool should ship by default")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().SharedSettings, cfg.SharedSettings)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.CurrentProvider = "openai"
	cfg.SharedSettings.Temperature = 0.3
	cfg.Providers["openai"] = ProviderConfig{
		APIKey:  "sk-test",
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.CurrentProvider)
	assert.Equal(t, 0.3, loaded.SharedSettings.Temperature)

	provider, err := loaded.CurrentProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", provider.Model)
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	sparse := &Config{CurrentProvider: "gemini"}
	require.NoError(t, sparse.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, loaded.SharedSettings.MaxTokens)
	assert.Equal(t, ":8080", loaded.ListenAddr)
	assert.NotEmpty(t, loaded.FunctionTools)
}

func TestCurrentProviderConfigUnknown(t *testing.T) {
	cfg := Default()
	cfg.CurrentProvider = "nope"
	_, err := cfg.CurrentProviderConfig()
	assert.Error(t, err)
}

func TestToolDefinitionsMapping(t *testing.T) {
	cfg := Default()
	defs := cfg.ToolDefinitions()
	require.Len(t, defs, len(cfg.FunctionTools))

	byName := make(map[string]tools.Definition)
	for _, def := range defs {
		byName[def.Name] = def
	}

	assert.Equal(t, tools.KindBuiltin, byName["fetch"].Kind)
	assert.Equal(t, tools.KindMockStatic, byName["get_weather"].Kind)
	assert.Contains(t, byName["get_weather"].MockPayload, "sunny")
	assert.True(t, byName["get_weather"].Enabled)
}
