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

// Package session manages the lifecycle of conversations: each
// Conversation pairs one root Orchestrator with the Memory and Metrics
// ports it runs against, tracked by a Manager keyed by a single
// conversationID + MemoryPort + MetricsPort scope.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravenforge/agentrun/memory"
	"github.com/ravenforge/agentrun/message"
	"github.com/ravenforge/agentrun/metrics"
	"github.com/ravenforge/agentrun/orchestrator"
)

// ErrNotFound is returned when a conversation id isn't tracked by the
// Manager.
var ErrNotFound = errors.New("session: conversation not found")

// Conversation is one orchestrator bound to its own history and metrics
// scope, plus activity and delegation bookkeeping; the Manager does not
// evict idle conversations.
type Conversation struct {
	ID           string
	Orchestrator *orchestrator.Orchestrator
	Memory       memory.Port
	Metrics      metrics.Port

	createdAt  time.Time
	lastActive time.Time

	mu              sync.Mutex
	activeDelegates int
}

// Send runs one user turn against the conversation's orchestrator and
// updates LastActive, so Manager.Touch-style sweeps can find idle
// conversations without the orchestrator package needing to know about
// session bookkeeping.
func (c *Conversation) Send(ctx context.Context, payload message.UserMessagePayload) (*message.Message, error) {
	c.touch()
	msg, err := c.Orchestrator.Send(ctx, c.ID, payload)
	c.touch()
	return msg, err
}

func (c *Conversation) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// LastActive reports when this conversation last completed or started a
// turn.
func (c *Conversation) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// BeginDelegate and EndDelegate track how many specialist sub-agent
// invocations are in flight for this conversation, exposed for
// diagnostics (e.g. a /v1/conversations/{id} status endpoint).
func (c *Conversation) BeginDelegate() {
	c.mu.Lock()
	c.activeDelegates++
	c.mu.Unlock()
}

func (c *Conversation) EndDelegate() {
	c.mu.Lock()
	c.activeDelegates--
	c.mu.Unlock()
}

// ActiveDelegates returns the number of specialist sub-agent calls
// currently running on behalf of this conversation.
func (c *Conversation) ActiveDelegates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeDelegates
}

// Manager creates and tracks Conversations. Orchestrators are supplied by
// the caller's Builder since only the wiring layer knows which LLM/tool
// ports a new conversation should run against.
type Manager struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	build         Builder
}

// Builder constructs a fresh Orchestrator (plus its Memory/Metrics ports)
// for a new conversation id, supplied by cmd/agentrun once, at startup.
type Builder func(conversationID string) (*orchestrator.Orchestrator, memory.Port, metrics.Port, error)

// NewManager creates a Manager that uses build to construct each new
// conversation's orchestrator on demand.
func NewManager(build Builder) *Manager {
	return &Manager{conversations: make(map[string]*Conversation), build: build}
}

// Create starts a new conversation, generating an id if id is empty.
func (m *Manager) Create(id string) (*Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conversations[id]; exists {
		return nil, fmt.Errorf("session: conversation %q already exists", id)
	}

	orch, mem, met, err := m.build(id)
	if err != nil {
		return nil, fmt.Errorf("session: building conversation %q: %w", id, err)
	}

	now := time.Now()
	c := &Conversation{ID: id, Orchestrator: orch, Memory: mem, Metrics: met, createdAt: now, lastActive: now}
	m.conversations[id] = c
	return c, nil
}

// Get returns the tracked conversation for id.
func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetOrCreate returns the existing conversation for id, creating one if
// it doesn't exist yet.
func (m *Manager) GetOrCreate(id string) (*Conversation, error) {
	if c, err := m.Get(id); err == nil {
		return c, nil
	}
	return m.Create(id)
}

// List returns every tracked conversation id.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	return ids
}

// Delete removes a conversation's in-process tracking and its memory
// scope. It does not cancel an in-flight Send.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	c, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.conversations, id)
	m.mu.Unlock()

	if c.Memory != nil {
		return c.Memory.Delete(ctx, id)
	}
	return nil
}
