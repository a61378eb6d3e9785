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

package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/ravenforge/agentrun/message"
)

// DefaultMaxConcurrent bounds the number of simultaneously executing
// tool calls from a single assistant turn.
const DefaultMaxConcurrent = 3

// Executor runs the tool calls from one assistant turn, bounding
// concurrency with a weighted semaphore the way the orchestrator bounds
// delegated sub-agent fan-out, and gating approval-required tools
// through an Approvals tracker before they run.
type Executor struct {
	port        Port
	sem         *semaphore.Weighted
	approvals   *Approvals
	onToolStart func(callID, name string)
	onToolEnd   func(callID, name string, result message.ToolExecutionResult)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxConcurrent overrides DefaultMaxConcurrent.
func WithMaxConcurrent(n int64) ExecutorOption {
	return func(e *Executor) { e.sem = semaphore.NewWeighted(n) }
}

// WithApprovals attaches a per-conversation Approvals tracker; omit for
// tool ports with no approval-gated tools.
func WithApprovals(a *Approvals) ExecutorOption {
	return func(e *Executor) { e.approvals = a }
}

// WithHooks attaches observability callbacks invoked before and after
// each call; SetHooks replaces them later.
func WithHooks(onStart func(callID, name string), onEnd func(callID, name string, result message.ToolExecutionResult)) ExecutorOption {
	return func(e *Executor) {
		e.onToolStart = onStart
		e.onToolEnd = onEnd
	}
}

// SetHooks replaces the observability callbacks set by WithHooks. The
// orchestrator calls this once per step to scope onEnd to the assistant
// message the tool calls belong to, since only the caller of RunAll
// knows that message's id.
func (e *Executor) SetHooks(onStart func(callID, name string), onEnd func(callID, name string, result message.ToolExecutionResult)) {
	e.onToolStart = onStart
	e.onToolEnd = onEnd
}

// NewExecutor creates an Executor dispatching through port.
func NewExecutor(port Port, opts ...ExecutorOption) *Executor {
	e := &Executor{port: port, sem: semaphore.NewWeighted(DefaultMaxConcurrent)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunAll executes every call in calls concurrently (bounded by the
// Executor's semaphore) and returns one ToolExecutionResult per call, in
// the same order as calls, regardless of completion order.
func (e *Executor) RunAll(ctx context.Context, calls []message.ToolCall) []message.ToolExecutionResult {
	results := make([]message.ToolExecutionResult, len(calls))
	done := make(chan struct{}, len(calls))

	for i, call := range calls {
		i, call := i, call
		if err := e.sem.Acquire(ctx, 1); err != nil {
			results[i] = message.ToolExecutionResult{
				ID:     call.ID,
				Name:   call.Name,
				Status: message.StatusError,
				Type:   message.ResultText,
				Result: err.Error(),
			}
			done <- struct{}{}
			continue
		}
		go func() {
			defer e.sem.Release(1)
			results[i] = e.runOne(ctx, call)
			done <- struct{}{}
		}()
	}

	for range calls {
		<-done
	}
	return results
}

func (e *Executor) runOne(ctx context.Context, call message.ToolCall) message.ToolExecutionResult {
	if e.onToolStart != nil {
		e.onToolStart(call.ID, call.Name)
	}
	result := e.execute(ctx, call)
	if e.onToolEnd != nil {
		e.onToolEnd(call.ID, call.Name, result)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, call message.ToolCall) message.ToolExecutionResult {
	t, ok := e.port.Lookup(call.Name)
	if !ok {
		return message.ToolExecutionResult{
			ID: call.ID, Name: call.Name, Status: message.StatusError, Type: message.ResultText,
			Result: fmt.Sprintf("unknown tool %q", call.Name),
		}
	}

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		return message.ToolExecutionResult{
			ID: call.ID, Name: call.Name, Status: message.StatusError, Type: message.ResultText,
			Result: fmt.Sprintf("invalid arguments: %v", err),
		}
	}

	if t.RequiresApproval() {
		decision, edited, err := e.checkApproval(call.ID, call.Name)
		if err != nil {
			return message.ToolExecutionResult{
				ID: call.ID, Name: call.Name, Status: message.StatusPending, Type: message.ResultText,
				Result: fmt.Sprintf("awaiting approval for tool %q", call.Name),
			}
		}
		defer e.approvals.Clear(call.ID)

		if decision == Deny {
			return message.ToolExecutionResult{
				ID: call.ID, Name: call.Name, Status: message.StatusDenied, Type: message.ResultText,
				Result: "tool call denied by user",
			}
		}
		if edited != nil {
			args = edited
		}
	}

	out, err := t.Call(ctx, args)
	if err != nil {
		return message.ToolExecutionResult{
			ID: call.ID, Name: call.Name, Status: message.StatusError, Type: message.ResultText, Result: err.Error(),
		}
	}
	return message.ToolExecutionResult{
		ID: call.ID, Name: call.Name, Status: message.StatusSuccess, Type: message.ResultJSON, Result: out,
	}
}

func (e *Executor) checkApproval(callID, name string) (Decision, map[string]any, error) {
	if e.approvals == nil {
		// No approval tracker configured: treat approval-required tools
		// as always pending so a misconfigured Executor fails closed
		// rather than silently skipping the gate.
		return "", nil, ErrPending
	}
	return e.approvals.Check(callID, name)
}

func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
