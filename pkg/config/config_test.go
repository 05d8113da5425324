package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/config"
)

func TestDefaultsAreZeroConfigSafe(t *testing.T) {
	cfg := config.Defaults()
	require.NotEmpty(t, cfg.OpenRouter.Model)
	require.True(t, cfg.Continuation.RequireExplicitSignal)
	require.Equal(t, 1000, cfg.Loop.MaxInternalIterations)
}

func TestModelForFallsBackToDefault(t *testing.T) {
	cfg := config.Defaults()
	cfg.OpenRouter.Model = "openai/gpt-4o"
	cfg.TaskModels = map[string]string{"planning": "anthropic/claude-3-5-sonnet"}

	require.Equal(t, "anthropic/claude-3-5-sonnet", cfg.ModelFor("planning"))
	require.Equal(t, "openai/gpt-4o", cfg.ModelFor("coding"))
}

func TestPromptForFallsBackToDefault(t *testing.T) {
	cfg := config.Defaults()
	cfg.TaskPrompts = map[string]string{"planning": "plan carefully"}

	require.Equal(t, "plan carefully", cfg.PromptFor("planning", "be a helpful assistant"))
	require.Equal(t, "be a helpful assistant", cfg.PromptFor("coding", "be a helpful assistant"))
}

func TestLoadFromFileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_AIW_MODEL", "openai/gpt-4.1-mini")

	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openrouter:
  model: ${TEST_AIW_MODEL}
  site_url: https://example.test
workspace_path: /workspace
`), 0o644))

	cfg, err := config.Load(config.LoaderOptions{Path: path}, nil)
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-4.1-mini", cfg.OpenRouter.Model)
	require.Equal(t, "https://example.test", cfg.OpenRouter.SiteURL)
	require.Equal(t, "/workspace", cfg.WorkspacePath)
}

func TestLoadDecodesPluginPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openrouter:
  model: openai/gpt-4o-mini
plugin_paths:
  - ./plugins/weather_tool
  - ./plugins/search_tool
`), 0o644))

	cfg, err := config.Load(config.LoaderOptions{Path: path}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"./plugins/weather_tool", "./plugins/search_tool"}, cfg.PluginPaths)
}

func TestLoadAppliesEnvOverlayForAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openrouter:\n  model: openai/gpt-4o-mini\n"), 0o644))

	l, err := config.NewLoader(config.LoaderOptions{Path: path}, nil)
	require.NoError(t, err)
	_, err = l.Load()
	require.NoError(t, err)
}

func TestLoaderWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openrouter:\n  model: openai/gpt-4o-mini\n"), 0o644))

	changed := make(chan *config.Config, 1)
	l, err := config.NewLoader(config.LoaderOptions{
		Path:  path,
		Watch: true,
		OnChange: func(cfg *config.Config) error {
			changed <- cfg
			return nil
		},
	}, nil)
	require.NoError(t, err)
	_, err = l.Load()
	require.NoError(t, err)
	defer l.Stop()

	require.NoError(t, os.WriteFile(path, []byte("openrouter:\n  model: openai/gpt-4.1-mini\n"), 0o644))

	select {
	case cfg := <-changed:
		require.Equal(t, "openai/gpt-4.1-mini", cfg.OpenRouter.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestParseBackendType(t *testing.T) {
	b, err := config.ParseBackendType("ZK")
	require.NoError(t, err)
	require.Equal(t, config.BackendZookeeper, b)

	_, err = config.ParseBackendType("bogus")
	require.Error(t, err)
}
