// Package config provides configuration types and utilities for the agent
// orchestration runtime.
// This file contains the leaf configuration types composed by Config.
package config

import (
	"fmt"
	"time"
)

// ============================================================================
// SESSION
// ============================================================================

// SessionConfig maps the session.* keys: memory persistence and the
// outer orchestration loop's iteration budget.
type SessionConfig struct {
	MemPersist    bool `yaml:"memPersist"`
	MaxIterations int  `yaml:"maxIterations"`
}

// Validate implements ConfigInterface.Validate for SessionConfig.
func (c *SessionConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("maxIterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for SessionConfig.
func (c *SessionConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 25
	}
}

// ============================================================================
// DELEGATION
// ============================================================================

// DelegationConfig maps the delegation.* keys.
type DelegationConfig struct {
	MaxDepth  int `yaml:"maxDepth"`
	TimeoutMs int `yaml:"timeoutMs"`
}

// Validate implements ConfigInterface.Validate for DelegationConfig.
func (c *DelegationConfig) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("maxDepth must be >= 0, got %d", c.MaxDepth)
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeoutMs must be positive, got %d", c.TimeoutMs)
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for DelegationConfig.
func (c *DelegationConfig) SetDefaults() {
	if c.MaxDepth == 0 {
		c.MaxDepth = 3
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = int(5 * time.Minute / time.Millisecond)
	}
}

// ============================================================================
// TOOLS
// ============================================================================

// ToolsConfig maps the tools.* keys.
type ToolsConfig struct {
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// Validate implements ConfigInterface.Validate for ToolsConfig.
func (c *ToolsConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("maxConcurrent must be positive, got %d", c.MaxConcurrent)
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for ToolsConfig.
func (c *ToolsConfig) SetDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 3
	}
}

// ============================================================================
// TRANSPORT
// ============================================================================

// RetryConfig maps the transport.retry object.
type RetryConfig struct {
	MaxRetries  int     `yaml:"maxRetries"`
	BaseDelayMs int     `yaml:"baseDelayMs"`
	MaxDelayMs  int     `yaml:"maxDelayMs"`
	Multiplier  float64 `yaml:"multiplier"`
	Jitter      bool    `yaml:"jitter"`
}

func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BaseDelayMs <= 0 {
		return fmt.Errorf("baseDelayMs must be positive, got %d", c.BaseDelayMs)
	}
	if c.MaxDelayMs < c.BaseDelayMs {
		return fmt.Errorf("maxDelayMs (%d) must be >= baseDelayMs (%d)", c.MaxDelayMs, c.BaseDelayMs)
	}
	return nil
}

func (c *RetryConfig) SetDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelayMs == 0 {
		c.BaseDelayMs = 500
	}
	if c.MaxDelayMs == 0 {
		c.MaxDelayMs = 30_000
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
}

// TransportConfig maps the transport.* keys.
type TransportConfig struct {
	TimeoutMs int             `yaml:"timeoutMs"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// Validate implements ConfigInterface.Validate for TransportConfig.
func (c *TransportConfig) Validate() error {
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeoutMs must be positive, got %d", c.TimeoutMs)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	return c.Retry.Validate()
}

// SetDefaults implements ConfigInterface.SetDefaults for TransportConfig.
func (c *TransportConfig) SetDefaults() {
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 30_000
	}
	c.Retry.SetDefaults()
	c.RateLimit.SetDefaults()
}

// RateLimitConfig bounds outbound request rate to an LLM provider,
// independent of the retry/backoff policy.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Validate implements ConfigInterface.Validate for RateLimitConfig.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requestsPerSecond must be positive, got %v", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be positive, got %d", c.Burst)
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for RateLimitConfig.
func (c *RateLimitConfig) SetDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst == 0 {
		c.Burst = 20
	}
}

// ============================================================================
// LLM, SERVER, LOGGING
// ============================================================================

// LLMConfig configures the default OpenAI-compatible provider the
// orchestrator talks to.
type LLMConfig struct {
	BaseURL   string `yaml:"baseURL"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
	Model     string `yaml:"model"`
	// Stream selects llm.Port.StreamCompletion over GenerateCompletion so
	// the orchestrator re-emits content deltas as llm_chunk events as
	// they arrive instead of only after the full completion lands.
	Stream bool `yaml:"stream"`
}

// Validate implements ConfigInterface.Validate for LLMConfig.
func (c *LLMConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for LLMConfig.
func (c *LLMConfig) SetDefaults() {
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
}

// ServerConfig configures the HTTP surface (package server).
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Validate implements ConfigInterface.Validate for ServerConfig.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// LoggingConfig configures package logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate implements ConfigInterface.Validate for LoggingConfig.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug|info|warn|error, got %q", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("format must be json or text, got %q", c.Format)
	}
	return nil
}

// SetDefaults implements ConfigInterface.SetDefaults for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}
