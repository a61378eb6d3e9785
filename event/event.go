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

// Package event defines the typed AgentEvent stream emitted by the
// orchestrator and the Port new subscribers implement to consume it.
//
// AgentEvent is a tagged union rather than a class hierarchy: one struct,
// one Kind discriminant, and a payload field per kind left nil when
// unused. This keeps the wire format (newline-delimited JSON, schema
// version "v":1) stable without reflection-based marshalling tricks.
package event

import (
	"time"

	"github.com/ravenforge/agentrun/message"
)

// Kind discriminates an AgentEvent.
type Kind string

const (
	KindMessageStarted   Kind = "message_started"
	KindLLMCallStarted   Kind = "llm_call_started"
	KindLLMChunk         Kind = "llm_chunk"
	KindLLMCallCompleted Kind = "llm_call_completed"
	KindToolCalls        Kind = "tool_calls"
	KindToolResult       Kind = "tool_result"
	KindAssistantMessage Kind = "assistant_message"
	KindMemoryAppended   Kind = "memory_appended"
	KindSubAgentStarted  Kind = "sub_agent_started"
	KindSubAgentMetrics  Kind = "sub_agent_metrics"
	KindSubAgentComplete Kind = "sub_agent_completed"
	KindDone             Kind = "done"
	KindError            Kind = "error"
)

// ErrorKind names the semantic error taxonomy carried on error events.
type ErrorKind string

const (
	ErrAborted        ErrorKind = "aborted"
	ErrIterationLimit ErrorKind = "iteration_limit"
	ErrTransport      ErrorKind = "transport_exhausted"
	ErrProtocol       ErrorKind = "protocol_violation"
	ErrMemory         ErrorKind = "memory_error"
	ErrInternal       ErrorKind = "internal"
)

// Usage mirrors the normalized provider usage shape, reused on
// llm_call_completed and done events.
type Usage struct {
	PromptTokens               int     `json:"prompt_tokens"`
	CompletionTokens           int     `json:"completion_tokens"`
	TotalTokens                int     `json:"total_tokens"`
	ReasoningTokens            int     `json:"reasoning_tokens,omitempty"`
	CachedTokens               int     `json:"cached_tokens,omitempty"`
	Cost                       float64 `json:"cost,omitempty"`
}

// Event is the tagged-union wire event. Every event carries
// ConversationID and MessageID; sub-agent events additionally carry
// AgentID and ToolCallID linking back to the parent tool call.
type Event struct {
	V              int       `json:"v"`
	Kind           Kind      `json:"kind"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	Timestamp      time.Time `json:"timestamp"`

	// sub-agent linkage
	AgentID    string `json:"agentId,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`

	// message_started
	ToolNames   []string `json:"toolNames,omitempty"`
	UserContent string   `json:"userContent,omitempty"`

	// llm_chunk
	Delta string `json:"delta,omitempty"`

	// llm_call_completed / done
	FinishReason string `json:"finishReason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	ResponseTimeMs int64 `json:"responseTimeMs,omitempty"`

	// tool_calls
	ToolCalls []message.ToolCall `json:"toolCalls,omitempty"`

	// tool_result
	ToolResult *message.ToolExecutionResult `json:"toolResult,omitempty"`

	// assistant_message
	AssistantText string `json:"assistantText,omitempty"`

	// error
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	ErrorMsg  string    `json:"errorMsg,omitempty"`
}

// New stamps a new event with the schema version and current time.
func New(kind Kind, conversationID, messageID string) Event {
	return Event{
		V:              1,
		Kind:           kind,
		ConversationID: conversationID,
		MessageID:      messageID,
		Timestamp:      time.Now(),
	}
}

// Port is the sink every orchestrator emits events to. Implementations
// must be safe for concurrent Emit from the orchestrator's own task and
// from child sub-agent tasks.
type Port interface {
	Emit(Event)
}

// PortFunc adapts a function to a Port.
type PortFunc func(Event)

// Emit implements Port.
func (f PortFunc) Emit(e Event) { f(e) }

// Multi fans out emitted events to every one of the given ports.
func Multi(ports ...Port) Port {
	return PortFunc(func(e Event) {
		for _, p := range ports {
			if p != nil {
				p.Emit(e)
			}
		}
	})
}
