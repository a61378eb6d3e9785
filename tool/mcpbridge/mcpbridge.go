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

// Package mcpbridge exposes tools from a Model Context Protocol server as
// a tool.Port, connecting lazily on first Lookup/List so the subprocess
// handshake is deferred until a caller actually needs the tool catalog.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ravenforge/agentrun/tool"
)

// Config configures a stdio-transport MCP connection.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Filter, if non-empty, limits which server-advertised tools are
	// exposed through this bridge.
	Filter []string
}

// Bridge is a tool.Port backed by one MCP server, connected over stdio.
type Bridge struct {
	cfg       Config
	filterSet map[string]bool

	mu        sync.Mutex
	client    *client.Client
	tools     map[string]*remoteTool
	toolOrder []string
	connected bool
}

// New creates a Bridge; the subprocess isn't started until the first
// Lookup or List call.
func New(cfg Config) *Bridge {
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}
	return &Bridge{cfg: cfg, filterSet: filterSet, tools: make(map[string]*remoteTool)}
}

func (b *Bridge) ensureConnected(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}

	env := make([]string, 0, len(b.cfg.Env))
	for k, v := range b.cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(b.cfg.Command, env, b.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcpbridge: creating client for %q: %w", b.cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("mcpbridge: starting %q: %w", b.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentrun", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcpbridge: initializing %q: %w", b.cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcpbridge: listing tools for %q: %w", b.cfg.Name, err)
	}

	for _, mt := range listResp.Tools {
		if b.filterSet != nil && !b.filterSet[mt.Name] {
			continue
		}
		schema := convertSchema(mt.InputSchema)
		rt := &remoteTool{bridge: b, name: mt.Name, description: mt.Description, schema: schema}
		b.tools[mt.Name] = rt
		b.toolOrder = append(b.toolOrder, mt.Name)
	}

	b.client = mcpClient
	b.connected = true
	return nil
}

// Lookup implements tool.Port.
func (b *Bridge) Lookup(name string) (tool.Tool, bool) {
	if err := b.ensureConnected(context.Background()); err != nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tools[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// List implements tool.Port.
func (b *Bridge) List() []tool.Tool {
	if err := b.ensureConnected(context.Background()); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]tool.Tool, 0, len(b.toolOrder))
	for _, name := range b.toolOrder {
		out = append(out, b.tools[name])
	}
	return out
}

// Close shuts down the underlying MCP subprocess, if started.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func convertSchema(raw mcp.ToolInputSchema) map[string]any {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out map[string]any
	if json.Unmarshal(b, &out) != nil {
		return nil
	}
	return out
}

// remoteTool adapts one MCP server tool to tool.Tool. MCP tools never
// require local HITL approval (the server is the trust boundary), so
// RequiresApproval is always false here.
type remoteTool struct {
	bridge      *Bridge
	name        string
	description string
	schema      map[string]any
}

func (r *remoteTool) Name() string              { return r.name }
func (r *remoteTool) Description() string       { return r.description }
func (r *remoteTool) Schema() map[string]any    { return r.schema }
func (r *remoteTool) RequiresApproval() bool    { return false }

func (r *remoteTool) Call(ctx context.Context, args map[string]any) (any, error) {
	r.bridge.mu.Lock()
	c := r.bridge.client
	r.bridge.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("mcpbridge: %q not connected", r.bridge.cfg.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = r.name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: calling %q: %w", r.name, err)
	}
	if resp.IsError {
		return nil, fmt.Errorf("mcpbridge: tool %q returned an error result", r.name)
	}

	texts := make([]string, 0, len(resp.Content))
	for _, c := range resp.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) == 1 {
		return texts[0], nil
	}
	return texts, nil
}
