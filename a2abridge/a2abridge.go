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

// Package a2abridge dispatches a delegated task to a specialist running
// in a separate process, reached over the Agent2Agent protocol instead of
// in-process Go calls. It presents the remote agent as an llm.Port, so a
// single-iteration Orchestrator can front it without the rest of the
// orchestration loop knowing the specialist isn't local.
package a2abridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/message"
)

// Config points at one remote specialist's A2A endpoint.
type Config struct {
	// Name identifies this remote agent in logs and error messages.
	Name string
	// URL is the remote A2A server's base URL. AgentCardSource is derived
	// from it unless set explicitly.
	URL string
	// AgentCardSource overrides where the agent card is resolved from: an
	// http(s) URL or a local file path.
	AgentCardSource string
	// Timeout bounds one remote call. Default 30s.
	Timeout time.Duration
}

// Port adapts a remote A2A agent to llm.Port. GenerateCompletion sends the
// request's final user message as one A2A streaming message call and
// concatenates the text of the status-update messages and message replies
// it receives into a single completion text; artifact updates are not
// read. It does not support tool calls, since tool execution stays local
// to whichever orchestrator a specialist template configures with
// Transport: "a2a".
type Port struct {
	cfg  Config
	card *a2a.AgentCard
}

// New creates a Port for cfg. The agent card isn't resolved until the
// first GenerateCompletion call.
func New(cfg Config) (*Port, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2abridge: name is required")
	}
	if cfg.URL == "" && cfg.AgentCardSource == "" {
		return nil, fmt.Errorf("a2abridge: one of URL or AgentCardSource is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AgentCardSource == "" {
		cfg.AgentCardSource = strings.TrimSuffix(cfg.URL, "/") + "/.well-known/agent.json"
	}
	return &Port{cfg: cfg}, nil
}

func (p *Port) resolveCard(ctx context.Context) (*a2a.AgentCard, error) {
	if p.card != nil {
		return p.card, nil
	}

	source := p.cfg.AgentCardSource
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		card, err := agentcard.DefaultResolver.Resolve(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("a2abridge: resolving agent card from %s: %w", source, err)
		}
		p.card = card
		return card, nil
	}

	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("a2abridge: reading agent card from %q: %w", source, err)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("a2abridge: unmarshaling agent card: %w", err)
	}
	p.card = &card
	return &card, nil
}

// GenerateCompletion implements llm.Port by forwarding the last user
// message in req to the remote agent and collecting its reply text.
func (p *Port) GenerateCompletion(ctx context.Context, req llm.Request) (llm.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	card, err := p.resolveCard(ctx)
	if err != nil {
		return llm.Completion{}, err
	}

	client, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("a2abridge: creating client for %q: %w", p.cfg.Name, err)
	}
	defer func() { _ = client.Destroy() }()

	text := lastUserText(req)
	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	sendReq := &a2a.MessageSendParams{Message: msg}

	var b strings.Builder
	for evt, err := range client.SendStreamingMessage(ctx, sendReq) {
		if err != nil {
			return llm.Completion{}, fmt.Errorf("a2abridge: remote call to %q failed: %w", p.cfg.Name, err)
		}
		appendEventText(&b, evt)
	}

	return llm.Completion{Content: b.String(), FinishReason: "stop"}, nil
}

// StreamCompletion implements llm.Port without incremental delivery: it
// runs GenerateCompletion and replays the full text as one chunk, since
// A2A's own streaming granularity (task status and artifact events)
// doesn't map cleanly onto token-level StreamHandlers.OnChunk.
func (p *Port) StreamCompletion(ctx context.Context, req llm.Request, h llm.StreamHandlers) (llm.Completion, error) {
	completion, err := p.GenerateCompletion(ctx, req)
	if err != nil {
		return completion, err
	}
	if h.OnChunk != nil && completion.Content != "" {
		h.OnChunk(completion.Content)
	}
	return completion, nil
}

// GetModels implements llm.Port. A remote specialist exposes one fixed
// identity, not a model catalog.
func (p *Port) GetModels(ctx context.Context) ([]llm.Model, error) {
	return []llm.Model{{ID: p.cfg.Name}}, nil
}

func lastUserText(req llm.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == message.RoleUser {
			return req.Messages[i].Text
		}
	}
	return ""
}

func appendEventText(b *strings.Builder, evt a2a.Event) {
	switch e := evt.(type) {
	case *a2a.TaskStatusUpdateEvent:
		if e.Status.Message != nil {
			appendMessageText(b, e.Status.Message)
		}
	case *a2a.Message:
		appendMessageText(b, e)
	}
}

func appendMessageText(b *strings.Builder, msg *a2a.Message) {
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
}

var _ llm.Port = (*Port)(nil)
