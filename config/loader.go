// Package config provides configuration types and utilities for the agent
// orchestration runtime.
// This file implements layered loading (defaults < file < environment)
// and file hot-reload, restricted to the single local-file + env topology
// this runtime needs (no consul/etcd/zookeeper backends).
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader loads Config from defaults, an optional YAML file, and
// AGENTRUN_-prefixed environment variables, in that precedence order.
type Loader struct {
	path string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLoader creates a Loader reading from path. path may be empty to
// load defaults and environment only.
func NewLoader(path string) *Loader {
	return &Loader{path: path, stopCh: make(chan struct{})}
}

// Load resolves defaults < file < env into a validated Config.
func (l *Loader) Load() (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	defaultsMap, err := structToMap(defaults)
	if err != nil {
		return nil, fmt.Errorf("config: flattening defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(defaultsMap, "."), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if l.path != "" {
		if _, err := os.Stat(l.path); err == nil {
			if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", l.path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", l.path, err)
		}
	}

	if err := k.Load(env.Provider("AGENTRUN_", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// envKeyTransform maps AGENTRUN_SESSION_MAXITERATIONS to
// session.maxiterations, matching koanf's lowercase default key casing.
func envKeyTransform(s string) string {
	s = strings.TrimPrefix(s, "AGENTRUN_")
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// Watch reloads the config file on change and invokes onChange with the
// newly validated Config, debouncing bursts of fsnotify events into a
// single reload. Blocks until ctx is canceled.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config)) error {
	if l.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	target := filepath.Base(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	var debounce *time.Timer
	const debounceDelay = 150 * time.Millisecond
	reload := func() {
		cfg, err := l.Load()
		if err != nil {
			slog.Error("config: reload failed", "error", err)
			return
		}
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopCh:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "error", err)
		}
	}
}

// Stop ends a running Watch loop.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// structToMap flattens cfg's yaml tags into a nested map koanf's confmap
// provider can load as the lowest-precedence layer.
func structToMap(cfg Config) (map[string]any, error) {
	return map[string]any{
		"session":          map[string]any{"mempersist": cfg.Session.MemPersist, "maxiterations": cfg.Session.MaxIterations},
		"delegation":       map[string]any{"maxdepth": cfg.Delegation.MaxDepth, "timeoutms": cfg.Delegation.TimeoutMs},
		"tools":            map[string]any{"maxconcurrent": cfg.Tools.MaxConcurrent},
		"thinking":         string(cfg.Thinking),
		"agenttemplatedir": cfg.AgentTemplateDir,
		"transport": map[string]any{
			"timeoutms": cfg.Transport.TimeoutMs,
			"retry": map[string]any{
				"maxretries":  cfg.Transport.Retry.MaxRetries,
				"basedelayms": cfg.Transport.Retry.BaseDelayMs,
				"maxdelayms":  cfg.Transport.Retry.MaxDelayMs,
				"multiplier":  cfg.Transport.Retry.Multiplier,
				"jitter":      cfg.Transport.Retry.Jitter,
			},
		},
		"llm":     map[string]any{"baseurl": cfg.LLM.BaseURL, "apikeyenv": cfg.LLM.APIKeyEnv, "model": cfg.LLM.Model, "stream": cfg.LLM.Stream},
		"server":  map[string]any{"addr": cfg.Server.Addr},
		"logging": map[string]any{"level": cfg.Logging.Level, "format": cfg.Logging.Format},
	}, nil
}
