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

// Package contextbuilder produces the provider-ready message sequence the
// orchestrator hands to the LLM Port on each iteration: a system prompt,
// the conversation history, and any new user content on the first
// iteration.
package contextbuilder

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/message"
)

// SystemInfo augments the template's system prompt with runtime facts the
// model can use to ground file paths and platform-specific commands.
type SystemInfo struct {
	IncludeTime     bool
	IncludePlatform bool
	IncludeTempDir  bool
	IncludeCWD      bool
	// FolderTree, if non-empty, is appended verbatim (callers compute it;
	// walking the filesystem is a built-in-tool concern out of scope here).
	FolderTree string
}

// Reminders is free-form operator guidance appended after SystemInfo,
// e.g. "always cite sources" or delegation-specific house rules.
type Reminders []string

// Builder assembles provider messages from history plus a template.
type Builder struct {
	Multimodal bool // whether the target model accepts image parts
}

// New creates a Builder. Multimodal controls whether image parts are
// rendered as {text, image_url} parts or collapsed to text-only.
func New(multimodal bool) *Builder {
	return &Builder{Multimodal: multimodal}
}

// RenderSystemPrompt composes the template system prompt with optional
// SystemInfo and Reminders sections, in that order, each separated by a
// blank line.
func RenderSystemPrompt(base string, info SystemInfo, reminders Reminders) string {
	var b strings.Builder
	b.WriteString(base)

	var infoLines []string
	if info.IncludeTime {
		infoLines = append(infoLines, "Current time: "+time.Now().UTC().Format(time.RFC3339))
	}
	if info.IncludePlatform {
		infoLines = append(infoLines, fmt.Sprintf("Platform: %s/%s", runtime.GOOS, runtime.GOARCH))
	}
	if info.IncludeTempDir {
		infoLines = append(infoLines, "Temp dir: "+os.TempDir())
	}
	if info.IncludeCWD {
		if cwd, err := os.Getwd(); err == nil {
			infoLines = append(infoLines, "Working directory: "+cwd)
		}
	}
	if info.FolderTree != "" {
		infoLines = append(infoLines, "Folder tree:\n"+info.FolderTree)
	}
	if len(infoLines) > 0 {
		b.WriteString("\n\n# System Info\n")
		b.WriteString(strings.Join(infoLines, "\n"))
	}

	if len(reminders) > 0 {
		b.WriteString("\n\n# Reminders\n")
		for _, r := range reminders {
			b.WriteString("- " + r + "\n")
		}
	}

	return b.String()
}

// Build renders history plus optional new user content into a provider
// request's Messages field. newUserContent is non-nil only on the first
// iteration of a send call; subsequent iterations replay history alone.
func (b *Builder) Build(systemPrompt string, history []*message.Message, newUserContent *message.Content) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history)+2)
	if systemPrompt != "" {
		out = append(out, llm.ChatMessage{Role: message.RoleSystem, Text: systemPrompt})
	}
	for _, m := range history {
		out = append(out, b.render(m))
	}
	if newUserContent != nil {
		out = append(out, b.renderContent(message.RoleUser, *newUserContent))
	}
	return out
}

func (b *Builder) render(m *message.Message) llm.ChatMessage {
	cm := b.renderContent(m.Role, m.Content)
	cm.ToolCalls = m.ToolCalls
	cm.ToolCallID = m.ToolCallID
	cm.Name = m.Name
	return cm
}

// renderContent collapses structured content for non-multimodal roles or
// providers, and preserves {text, image_url} parts otherwise.
func (b *Builder) renderContent(role message.Role, content message.Content) llm.ChatMessage {
	if !content.IsStructured() || !b.Multimodal || role != message.RoleUser {
		return llm.ChatMessage{Role: role, Text: content.Flatten()}
	}

	parts := make([]llm.ChatPart, 0, len(content.Parts))
	for _, p := range content.Parts {
		switch p.Type {
		case message.PartText:
			parts = append(parts, llm.ChatPart{Type: "text", Text: p.Text})
		case message.PartImage:
			parts = append(parts, llm.ChatPart{Type: "image_url", ImageURL: p.DataURI()})
		}
	}
	return llm.ChatMessage{Role: role, Parts: parts}
}
