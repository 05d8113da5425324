// Package config loads AIWhisperer's runtime configuration: OpenRouter
// model/params, per-task model and prompt overrides, workspace and output
// paths, and the loop/continuation tunables exposed as Open Question
// decisions in this codebase.
//
// The loader composes a koanf.Koanf from a file provider, an
// environment-variable expansion pass, then a confmap provider of process
// env vars, decoded with mapstructure via yaml tags.
package config

import (
	"time"

	"github.com/aiwhisperer/core/pkg/archive"
	"github.com/aiwhisperer/core/pkg/observability"
)

// OpenRouterConfig configures the aiservice client.
type OpenRouterConfig struct {
	Model   string         `yaml:"model"`
	Params  map[string]any `yaml:"params"`
	SiteURL string         `yaml:"site_url"`
	AppName string         `yaml:"app_name"`
}

// LoopConfig tunes pkg/loop.
type LoopConfig struct {
	MaxInternalIterations int `yaml:"max_internal_iterations"`
}

// ContinuationConfig tunes pkg/continuation.
type ContinuationConfig struct {
	RequireExplicitSignal bool          `yaml:"require_explicit_signal"`
	MaxIterations         int           `yaml:"max_iterations"`
	Timeout               time.Duration `yaml:"timeout"`
}

// Config is AIWhisperer's top-level configuration.
type Config struct {
	OpenRouter OpenRouterConfig `yaml:"openrouter"`

	// TaskModels overrides OpenRouter.Model per task kind (e.g. "planning",
	// "coding"). Empty means fall back to OpenRouter.Model.
	TaskModels map[string]string `yaml:"task_models"`

	// TaskPrompts overrides the default system prompt per task kind.
	TaskPrompts map[string]string `yaml:"task_prompts"`

	WorkspacePath string `yaml:"workspace_path"`
	OutputDir     string `yaml:"output_dir"`

	// PluginPaths lists external tool-plugin binaries (hashicorp/go-plugin
	// subprocesses, see pkg/tool/plugintool) to load and register at
	// startup, each under the tool name its own Describe() call reports.
	PluginPaths []string `yaml:"plugin_paths"`

	Loop         LoopConfig         `yaml:"loop"`
	Continuation ContinuationConfig `yaml:"continuation"`

	Archive       archive.Config       `yaml:"archive"`
	Observability observability.Config `yaml:"observability"`
	Surface       SurfaceConfig        `yaml:"surface"`
}

// SurfaceConfig tunes the external MCP/WS/HTTP adapters cmd/aiwhisperer
// starts alongside the session manager.
type SurfaceConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	WSAddr   string `yaml:"ws_addr"`
	MCPStdio bool   `yaml:"mcp_stdio"`

	JWKSURL  string `yaml:"jwks_url"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// ModelFor resolves the model for a task kind, falling back to the
// top-level OpenRouter model when no task-specific override is set.
func (c *Config) ModelFor(taskKind string) string {
	if m, ok := c.TaskModels[taskKind]; ok && m != "" {
		return m
	}
	return c.OpenRouter.Model
}

// PromptFor resolves the system prompt for a task kind, falling back to
// def when no task-specific override is set.
func (c *Config) PromptFor(taskKind, def string) string {
	if p, ok := c.TaskPrompts[taskKind]; ok && p != "" {
		return p
	}
	return def
}

// Defaults returns the configuration applied when no file is present, so
// the runtime has sane zero-config behavior.
func Defaults() *Config {
	return &Config{
		OpenRouter: OpenRouterConfig{
			Model:   "openai/gpt-4o-mini",
			AppName: "aiwhisperer",
		},
		WorkspacePath: ".",
		OutputDir:     "./output",
		Loop: LoopConfig{
			MaxInternalIterations: 1000,
		},
		Continuation: ContinuationConfig{
			RequireExplicitSignal: true,
			MaxIterations:         10,
			Timeout:               5 * time.Minute,
		},
		Archive: archive.Config{
			Backend: "sqlite",
			DSN:     "aiwhisperer_archive.db",
		},
		Surface: SurfaceConfig{
			HTTPAddr: ":8080",
			WSAddr:   ":8081",
			MCPStdio: true,
		},
	}
}
