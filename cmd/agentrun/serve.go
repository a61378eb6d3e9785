// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ravenforge/agentrun/a2abridge"
	"github.com/ravenforge/agentrun/config"
	"github.com/ravenforge/agentrun/delegation"
	"github.com/ravenforge/agentrun/delegation/taskstore"
	"github.com/ravenforge/agentrun/event"
	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/llm/openaicompat"
	"github.com/ravenforge/agentrun/logging"
	"github.com/ravenforge/agentrun/memory"
	"github.com/ravenforge/agentrun/metrics"
	"github.com/ravenforge/agentrun/orchestrator"
	"github.com/ravenforge/agentrun/server"
	"github.com/ravenforge/agentrun/session"
	"github.com/ravenforge/agentrun/tool"
	"github.com/ravenforge/agentrun/transport"
)

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	Watch bool `help:"Watch the config file and hot-reload logging on change."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	loader := config.NewLoader(cli.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.Init(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	if c.Watch {
		go func() {
			if err := loader.Watch(ctx, func(newCfg *config.Config) {
				_, _ = logging.Init(newCfg.Logging, os.Stderr)
			}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watch disabled", "error", err)
			}
		}()
		defer loader.Stop()
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	rt := newWiring(cfg, logger)

	srv := server.New(cfg.Server, rt.sessions, rt.events, rt.metrics, logger)
	logger.Info("agentrun starting", "addr", cfg.Server.Addr)
	return srv.Start(ctx)
}

// wiring bundles the shared dependencies every conversation's orchestrator is built from.
type wiring struct {
	sessions *session.Manager
	events   *event.Bus
	metrics  *metrics.Registry
}

func newWiring(cfg *config.Config, logger *slog.Logger) *wiring {
	bus := event.NewBus()
	metricsReg := metrics.NewRegistry(prometheus.NewRegistry())

	llmPort := buildLLMPort(cfg)
	toolPort, assignTask, taskOutput := buildTools(cfg, logger, bus, metricsReg)

	build := func(conversationID string) (*orchestrator.Orchestrator, memory.Port, metrics.Port, error) {
		mem, err := buildMemory(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		composite := tool.NewComposite(toolPort)
		if assignTask != nil {
			registry := tool.NewRegistry()
			registry.Register(assignTask)
			if taskOutput != nil {
				registry.Register(taskOutput)
			}
			composite = tool.NewComposite(toolPort, registry)
		}
		orch := orchestrator.New(orchestrator.Config{
			Model:         cfg.LLM.Model,
			MaxIterations: cfg.Session.MaxIterations,
			Stream:        cfg.LLM.Stream,
			LLM:           llmPort,
			Tools:         composite,
			Memory:        mem,
			Metrics:       metricsReg,
			Events:        bus,
		}, tool.NewExecutor(composite, tool.WithMaxConcurrent(int64(cfg.Tools.MaxConcurrent))))
		return orch, mem, metricsReg, nil
	}

	return &wiring{
		sessions: session.NewManager(build),
		events:   bus,
		metrics:  metricsReg,
	}
}

func buildLLMPort(cfg *config.Config) llm.Port {
	retry := transport.RetryOptions{
		MaxRetries: cfg.Transport.Retry.MaxRetries,
		BaseDelay:  time.Duration(cfg.Transport.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Transport.Retry.MaxDelayMs) * time.Millisecond,
	}
	return openaicompat.New(openaicompat.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    os.Getenv(cfg.LLM.APIKeyEnv),
		AuthStyle: transport.BearerAuth,
		Timeout:   time.Duration(cfg.Transport.TimeoutMs) * time.Millisecond,
		Retry:     retry,
		RateLimit: transport.RateLimitConfig{
			RequestsPerSecond: cfg.Transport.RateLimit.RequestsPerSecond,
			Burst:             cfg.Transport.RateLimit.Burst,
		},
	})
}

func buildMemory(cfg *config.Config) (memory.Port, error) {
	if !cfg.Session.MemPersist {
		return memory.NewInMemory(), nil
	}
	dir := filepath.Join(".agentrun", "history")
	return memory.NewFileStore(dir)
}

// buildTools loads the specialist template directory (if present) and
// wires assign_task/task_output on top of an empty built-in tool
// registry; a deployment embedding agentrun as a library registers its
// own tools directly against the Composite instead.
func buildTools(cfg *config.Config, logger *slog.Logger, bus *event.Bus, metricsReg *metrics.Registry) (tool.Port, *delegation.AssignTaskTool, *delegation.TaskOutputTool) {
	builtins := tool.NewRegistry()

	templates := delegation.NewRegistry()
	if cfg.AgentTemplateDir != "" {
		if entries, err := os.ReadDir(cfg.AgentTemplateDir); err == nil {
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				path := filepath.Join(cfg.AgentTemplateDir, entry.Name())
				if err := templates.LoadFile(path); err != nil {
					logger.Warn("skipping agent template", "path", path, "error", err)
				}
			}
		}
	}
	if len(templates.Names()) == 0 {
		return builtins, nil, nil
	}

	policy := delegation.Policy{MaxDepth: cfg.Delegation.MaxDepth}
	store := taskstore.New()

	factory := func(spec delegation.SpecialistConfig, scope string) (*orchestrator.Orchestrator, error) {
		return buildSpecialistOrchestrator(cfg, spec, builtins, bus, metricsReg)
	}

	assignTask := delegation.NewAssignTaskTool(templates, policy, factory, store)
	assignTask.SetTimeout(time.Duration(cfg.Delegation.TimeoutMs) * time.Millisecond)
	taskOutput := delegation.NewTaskOutputTool(store)
	return builtins, assignTask, taskOutput
}

func buildSpecialistOrchestrator(cfg *config.Config, spec delegation.SpecialistConfig, builtins *tool.Registry, bus *event.Bus, metricsReg *metrics.Registry) (*orchestrator.Orchestrator, error) {
	mem := memory.NewInMemory()
	model := spec.Model
	if model == "" {
		model = cfg.LLM.Model
	}

	var llmPort llm.Port
	if spec.Transport == "a2a" {
		bridge, err := a2abridge.New(a2abridge.Config{Name: spec.Name, URL: spec.RemoteURL})
		if err != nil {
			return nil, err
		}
		llmPort = bridge
	} else {
		llmPort = buildLLMPort(cfg)
	}

	orch := orchestrator.New(orchestrator.Config{
		AgentID:       spec.Name,
		SystemPrompt:  spec.SystemPrompt,
		Model:         model,
		MaxIterations: cfg.Session.MaxIterations,
		Stream:        cfg.LLM.Stream,
		LLM:           llmPort,
		Tools:         builtins,
		Memory:        mem,
		Metrics:       metricsReg,
		Events:        bus,
	}, tool.NewExecutor(builtins, tool.WithMaxConcurrent(int64(cfg.Tools.MaxConcurrent))))
	return orch, nil
}
