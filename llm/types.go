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

// Package llm defines the LLM Port and the provider-ready request/response
// shapes the Context Builder and orchestrator exchange with it. It
// deliberately mirrors the universal chat-completions message format
// rather than any single provider's wire envelope.
package llm

import (
	"context"

	"github.com/ravenforge/agentrun/message"
)

// ChatPart is one piece of a multimodal chat message, collapsed from
// message.ContentPart by the Context Builder.
type ChatPart struct {
	Type     string `json:"type"` // "text" | "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatMessage is a single provider-ready message.
type ChatMessage struct {
	Role       message.Role        `json:"role"`
	Text       string              `json:"content,omitempty"`
	Parts      []ChatPart          `json:"parts,omitempty"`
	ToolCalls  []message.ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	Name       string              `json:"name,omitempty"`
}

// ToolDefinition is the JSON-schema tool catalog entry sent to the model,
// built from tool.Tool.Definition() by the orchestrator.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice controls whether/which tool the model must call.
type ToolChoice struct {
	Mode string `json:"mode,omitempty"` // "auto" | "none" | "required"
	Name string `json:"name,omitempty"`
}

// Request is the normalized completion request sent to an LLM Port.
type Request struct {
	Model       string
	Messages    []ChatMessage
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	Tools       []ToolDefinition
	ToolChoice  *ToolChoice
	Stream      bool
}

// Usage is the normalized token-usage shape reported by a completion.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	ReasoningTokens  int     `json:"reasoning_tokens,omitempty"`
	CachedTokens     int     `json:"cached_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
}

// Normalize fills TotalTokens when the provider omitted it.
func (u *Usage) Normalize() {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
}

// Completion is the normalized result of a (possibly streamed) LLM call.
type Completion struct {
	Content      string
	ToolCalls    []message.ToolCall
	Usage        Usage
	FinishReason string
}

// StreamHandlers are invoked during StreamCompletion as SSE frames arrive.
type StreamHandlers struct {
	OnChunk         func(delta string)
	OnToolCallDelta func(index int, idDelta, nameDelta, argsDelta string)
	OnStreamFinish  func(finishReason string, usage *Usage)
}

// Limits describes a model's context window.
type Limits struct {
	ContextWindow int
	MaxOutput     int
}

// Model is one entry in LLMPort.GetModels.
type Model struct {
	ID     string
	Name   string
	Limits *Limits
}

// Port abstracts a chat-completions-style LLM backend.
type Port interface {
	GenerateCompletion(ctx context.Context, req Request) (Completion, error)
	StreamCompletion(ctx context.Context, req Request, handlers StreamHandlers) (Completion, error)
	GetModels(ctx context.Context) ([]Model, error)
}
