// Package config provides configuration types and utilities for the agent
// orchestration runtime.
// This file contains the main unified configuration entry point.
package config

import "fmt"

// ThinkingLevel controls whether the orchestrator emits model reasoning
// deltas as llm_chunk events.
type ThinkingLevel string

const (
	ThinkingOff    ThinkingLevel = "off"
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// Config represents the complete runtime configuration: a single entry
// point composing the session, delegation, tool, transport, and ambient
// (LLM/server/logging) settings.
type Config struct {
	Session          SessionConfig    `yaml:"session"`
	Delegation       DelegationConfig `yaml:"delegation"`
	Tools            ToolsConfig      `yaml:"tools"`
	Transport        TransportConfig  `yaml:"transport"`
	Thinking         ThinkingLevel    `yaml:"thinking"`
	LLM              LLMConfig        `yaml:"llm"`
	Server           ServerConfig     `yaml:"server"`
	Logging          LoggingConfig    `yaml:"logging"`
	AgentTemplateDir string           `yaml:"agentTemplateDir"`
}

// Validate implements ConfigInterface.Validate for Config.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Delegation.Validate(); err != nil {
		return fmt.Errorf("delegation: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	switch c.Thinking {
	case ThinkingOff, ThinkingLow, ThinkingMedium, ThinkingHigh:
	default:
		return fmt.Errorf("thinking: must be one of off|low|medium|high, got %q", c.Thinking)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for Config.
func (c *Config) SetDefaults() {
	c.Session.SetDefaults()
	c.Delegation.SetDefaults()
	c.Tools.SetDefaults()
	c.Transport.SetDefaults()
	if c.Thinking == "" {
		c.Thinking = ThinkingOff
	}
	c.LLM.SetDefaults()
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	if c.AgentTemplateDir == "" {
		c.AgentTemplateDir = "agents"
	}
}

// Default returns a fully-defaulted Config, the baseline every Loader
// layers a file and environment overrides on top of.
func Default() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

var _ ConfigInterface = (*Config)(nil)
