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

package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/ravenforge/agentrun/delegation/taskstore"
)

// DefaultPollTimeout bounds a blocking task_output call when the caller
// doesn't specify timeout_seconds.
const DefaultPollTimeout = 30 * time.Second

// TaskOutputTool implements the task_output tool: it polls or blocks on
// a session_id previously returned by assign_task's background mode.
type TaskOutputTool struct {
	store *taskstore.Store
}

// NewTaskOutputTool wires task_output to the same Store assign_task
// writes background results into.
func NewTaskOutputTool(store *taskstore.Store) *TaskOutputTool {
	return &TaskOutputTool{store: store}
}

func (t *TaskOutputTool) Name() string { return "task_output" }
func (t *TaskOutputTool) Description() string {
	return "Polls or waits for the result of a background assign_task call."
}

func (t *TaskOutputTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{"type": "string", "description": "The session_id returned by a background assign_task call"},
			"wait":       map[string]any{"type": "boolean", "description": "If true, block until the task finishes or timeout_seconds elapses"},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Maximum seconds to block when wait is true; defaults to 30",
			},
		},
		"required": []string{"session_id"},
	}
}

func (t *TaskOutputTool) RequiresApproval() bool { return false }

func (t *TaskOutputTool) Call(ctx context.Context, args map[string]any) (any, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return nil, fmt.Errorf("delegation: task_output: session_id is required")
	}
	wait, _ := args["wait"].(bool)

	if !wait {
		task, ok := t.store.Get(sessionID)
		if !ok {
			return nil, fmt.Errorf("delegation: task_output: unknown session_id %q", sessionID)
		}
		return taskResult(task), nil
	}

	timeout := DefaultPollTimeout
	if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	task, ok := t.store.Wait(waitCtx, sessionID)
	if !ok {
		return nil, fmt.Errorf("delegation: task_output: unknown session_id %q", sessionID)
	}
	return taskResult(task), nil
}

func taskResult(task taskstore.Task) Result {
	switch task.Status {
	case taskstore.StatusRunning:
		return Result{Success: false, Error: "still running"}
	case taskstore.StatusFailed:
		return Result{Success: false, Error: task.Err.Error()}
	default:
		r := Result{Success: true, Summary: task.Result}
		r.Metadata.ExecutionTimeMs = task.FinishedAt.Sub(task.StartedAt).Milliseconds()
		return r
	}
}
