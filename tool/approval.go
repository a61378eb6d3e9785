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
	"fmt"
	"sync"
)

// Decision is a human's verdict on a pending approval-gated tool call.
type Decision string

const (
	AllowOnce    Decision = "allow_once"
	AllowSession Decision = "allow_session"
	Deny         Decision = "deny"
)

// EditedArgs wraps a Decision that also replaces the tool's arguments
// before execution.
type EditedArgs struct {
	Args map[string]any
}

// ErrPending is returned by Approvals.Check when no decision has been
// recorded yet; the Executor turns it into a message.StatusPending result
// for that call.
var ErrPending = fmt.Errorf("tool: awaiting approval decision")

// Approvals tracks HITL decisions keyed by tool-call-id (one-shot) or
// tool-name (session-scoped "always allow"), so a user can approve a
// single call or trust a tool for the rest of the conversation.
type Approvals struct {
	mu        sync.Mutex
	byCallID  map[string]Decision
	byName    map[string]Decision
	editsByID map[string]map[string]any
}

// NewApprovals creates an empty approval tracker, one per conversation.
func NewApprovals() *Approvals {
	return &Approvals{
		byCallID:  make(map[string]Decision),
		byName:    make(map[string]Decision),
		editsByID: make(map[string]map[string]any),
	}
}

// Record stores a decision for a specific call ID. If decision carries
// edited arguments, pass them separately via RecordEdit.
func (a *Approvals) Record(callID string, decision Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byCallID[callID] = decision
}

// RecordEdit stores edited arguments to substitute for callID's original
// ones, implying AllowOnce.
func (a *Approvals) RecordEdit(callID string, args map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byCallID[callID] = AllowOnce
	a.editsByID[callID] = args
}

// RecordForName stores a session-scoped decision for every future call
// to a tool by name (AllowSession short-circuits future approval
// prompts; Deny blocks them).
func (a *Approvals) RecordForName(name string, decision Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byName[name] = decision
}

// Check resolves the decision for a call, checking the call-ID-scoped
// decision first and falling back to any name-scoped one. It returns
// ErrPending when neither has been recorded. On success it returns the
// decision and, if edited arguments were attached, a non-nil map to
// replace the tool call's original arguments.
func (a *Approvals) Check(callID, name string) (Decision, map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d, ok := a.byCallID[callID]; ok {
		return d, a.editsByID[callID], nil
	}
	if d, ok := a.byName[name]; ok {
		return d, nil, nil
	}
	return "", nil, ErrPending
}

// Clear removes the call-ID-scoped decision after it has been consumed,
// preventing it from leaking into a later call that happens to reuse the
// same ID.
func (a *Approvals) Clear(callID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byCallID, callID)
	delete(a.editsByID, callID)
}
