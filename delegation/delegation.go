// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package delegation implements task delegation to named specialist
// agents: the assign_task tool looks up a specialist template in the
// Agent Registry, applies the Delegation Policy, and runs the specialist
// via a fresh child Orchestrator bound to an isolated memory scope
// ("agent:<agentId>:<sessionId>"). A sub-agent masquerades as one more
// tool in the catalog, generalized here into one data-driven tool
// instead of one tool per specialist.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravenforge/agentrun/agenterr"
	"github.com/ravenforge/agentrun/delegation/taskstore"
	"github.com/ravenforge/agentrun/message"
	"github.com/ravenforge/agentrun/orchestrator"
)

var tracer = otel.Tracer("github.com/ravenforge/agentrun/delegation")

// DefaultTimeout is the default wall-clock budget for one delegated run.
const DefaultTimeout = 5 * time.Minute

// SpecialistConfig describes one sub-agent reachable through assign_task.
// Templates are loaded from YAML by Registry (see template.go).
type SpecialistConfig struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"systemPrompt"`
	Model        string   `yaml:"model"`
	Tools        []string `yaml:"tools"`
	Disabled     bool     `yaml:"disabled"`
	// Transport selects the execution path: "" (in-process) or "a2a" for
	// a remote specialist dispatched through the a2abridge package.
	Transport string `yaml:"transport"`
	RemoteURL string `yaml:"remoteURL"`
}

type depthKey struct{}

// WithDepth stores the current delegation depth on ctx. The root
// orchestrator's context has no depth set, which Depth treats as 0.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// Depth returns the delegation depth carried on ctx, or 0 at the root.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

type scopeKey struct{}

// WithScope attaches the calling conversation's id to ctx so a child
// agent's memory scope and nested delegation calls can be derived from
// it deterministically.
func WithScope(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, conversationID)
}

func scopeFromContext(ctx context.Context) string {
	s, _ := ctx.Value(scopeKey{}).(string)
	return s
}

// ChildScope builds the Memory Port key for a specialist invocation: a
// child memory scope isolated per agent and parent conversation.
func ChildScope(agentName, parentConversationID string) string {
	return fmt.Sprintf("agent:%s:%s", agentName, parentConversationID)
}

// Policy bounds how deep delegation chains may go and which specialists
// may be invoked at all.
type Policy struct {
	MaxDepth int
	// Enabled, if non-nil, restricts delegation to the named specialists;
	// nil means every registered, non-disabled template is reachable.
	Enabled map[string]bool
}

// DefaultPolicy matches the delegation.maxDepth configuration default.
func DefaultPolicy() Policy {
	return Policy{MaxDepth: 3}
}

// Check verifies that delegating to name from the depth carried on ctx is
// permitted, returning the incremented child depth on success.
func (p Policy) Check(ctx context.Context, name string) (int, error) {
	if p.Enabled != nil && !p.Enabled[name] {
		return 0, fmt.Errorf("delegation: %q: %w", name, agenterr.DelegationPolicyDenied)
	}
	childDepth := Depth(ctx) + 1
	if childDepth > p.MaxDepth {
		return 0, fmt.Errorf("delegation: depth %d exceeds max %d: %w", childDepth, p.MaxDepth, agenterr.DelegationDepthExceeded)
	}
	return childDepth, nil
}

// ChildFactory builds a fresh, fully-wired Orchestrator for a specialist
// template, supplied by the wiring layer (cmd/agentrun or session) since
// only it knows the LLM/tool/metrics/event ports to give the child.
type ChildFactory func(cfg SpecialistConfig, scope string) (*orchestrator.Orchestrator, error)

// Result is the shape returned to the calling model on both success and
// failure of a delegated run.
type Result struct {
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
	Metadata struct {
		AgentID         string `json:"agentId"`
		ExecutionTimeMs int64  `json:"executionTimeMs"`
	} `json:"metadata,omitempty"`
}

// AssignTaskTool implements assign_task: one generic tool, data-driven
// by the Agent Registry, instead of a distinct tool per specialist.
type AssignTaskTool struct {
	registry *Registry
	policy   Policy
	build    ChildFactory
	store    *taskstore.Store
	timeout  time.Duration
}

// NewAssignTaskTool wires the assign_task tool to its registry, policy,
// and child factory. store may be nil to disable background mode.
func NewAssignTaskTool(registry *Registry, policy Policy, build ChildFactory, store *taskstore.Store) *AssignTaskTool {
	return &AssignTaskTool{registry: registry, policy: policy, build: build, store: store, timeout: DefaultTimeout}
}

// SetTimeout overrides the per-run wall-clock budget set by NewAssignTaskTool.
func (t *AssignTaskTool) SetTimeout(d time.Duration) { t.timeout = d }

func (t *AssignTaskTool) Name() string { return "assign_task" }
func (t *AssignTaskTool) Description() string {
	return "Delegates a task to a named specialist agent and returns its result."
}

func (t *AssignTaskTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{"type": "string", "description": "Name of the specialist agent to invoke"},
			"task":  map[string]any{"type": "string", "description": "The task description for the specialist"},
			"background": map[string]any{
				"type":        "boolean",
				"description": "If true, return a session_id immediately instead of waiting for the result",
			},
		},
		"required": []string{"agent", "task"},
	}
}

func (t *AssignTaskTool) RequiresApproval() bool { return false }

// Call looks up the named specialist, checks the delegation policy, and
// runs it synchronously or in the background, end to end.
func (t *AssignTaskTool) Call(ctx context.Context, args map[string]any) (any, error) {
	agentName, _ := args["agent"].(string)
	task, _ := args["task"].(string)

	ctx, span := tracer.Start(ctx, "delegation.assign_task", trace.WithAttributes(attribute.String("agent", agentName)))
	defer span.End()

	if agentName == "" || task == "" {
		return Result{Success: false, Error: "agent and task are required"}, nil
	}

	spec, ok := t.registry.Lookup(agentName)
	if !ok || spec.Disabled {
		return Result{Success: false, Error: fmt.Sprintf("agent %q not found or disabled", agentName)}, nil
	}

	childDepth, err := t.policy.Check(ctx, agentName)
	if err != nil {
		if errors.Is(err, agenterr.DelegationDepthExceeded) {
			return Result{Success: false, Error: "delegation depth exceeded"}, nil
		}
		return Result{Success: false, Error: err.Error()}, nil
	}
	childCtx := WithDepth(ctx, childDepth)
	scope := ChildScope(agentName, scopeFromContext(ctx))

	background, _ := args["background"].(bool)
	if background && t.store != nil {
		bgTask := t.store.Start(scope)
		go t.runAsync(context.WithoutCancel(childCtx), spec, scope, task, bgTask)
		return Result{Success: true, Summary: bgTask.ID}, nil
	}

	runCtx, cancel := context.WithTimeout(childCtx, t.timeout)
	defer cancel()
	return t.runSync(runCtx, spec, scope, task), nil
}

func (t *AssignTaskTool) runSync(ctx context.Context, spec SpecialistConfig, scope, task string) Result {
	start := time.Now()
	child, err := t.build(spec, scope)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	final, err := child.Send(ctx, scope, message.UserMessagePayload{Text: task})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	r := Result{Success: true, Summary: final.Content.Flatten()}
	r.Metadata.AgentID = spec.Name
	r.Metadata.ExecutionTimeMs = elapsed
	return r
}

func (t *AssignTaskTool) runAsync(ctx context.Context, spec SpecialistConfig, scope, task string, bgTask *taskstore.Task) {
	child, err := t.build(spec, scope)
	if err != nil {
		t.store.Fail(bgTask, err)
		return
	}
	final, err := child.Send(ctx, scope, message.UserMessagePayload{Text: task})
	if err != nil {
		t.store.Fail(bgTask, err)
		return
	}
	t.store.Complete(bgTask, final.Content.Flatten())
}
