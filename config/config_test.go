// Package config provides configuration types and utilities for the agent
// orchestration runtime.
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsInvalidUntilLLMIsSet(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err, "llm.baseURL/model have no safe default")
}

func TestConfig_SetDefaults_FillsOptionalFields(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Equal(t, 25, cfg.Session.MaxIterations)
	assert.Equal(t, 3, cfg.Delegation.MaxDepth)
	assert.Equal(t, 3, cfg.Tools.MaxConcurrent)
	assert.Equal(t, ThinkingOff, cfg.Thinking)
	assert.Equal(t, "agents", cfg.AgentTemplateDir)
}

func TestLoader_Load_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "llm:\n  baseURL: https://api.example.com/v1\n  model: gpt-4o\nsession:\n  maxIterations: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Session.MaxIterations)
	assert.Equal(t, 3, cfg.Tools.MaxConcurrent, "unset keys still fall back to defaults")
}

func TestLoader_Load_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "llm:\n  baseURL: https://api.example.com/v1\n  model: gpt-4o\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	t.Setenv("AGENTRUN_LLM_MODEL", "gpt-4o-mini")

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoader_Load_MissingFileFallsBackToDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("AGENTRUN_LLM_BASEURL", "https://api.example.com/v1")
	t.Setenv("AGENTRUN_LLM_MODEL", "gpt-4o")

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Session.MaxIterations)
}

func TestLoader_Watch_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	initial := "llm:\n  baseURL: https://api.example.com/v1\n  model: gpt-4o\n"
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	loader := NewLoader(path)
	changes := make(chan *Config, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loader.Watch(ctx, func(c *Config) { changes <- c })

	time.Sleep(50 * time.Millisecond)
	updated := "llm:\n  baseURL: https://api.example.com/v1\n  model: gpt-4o-mini\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
