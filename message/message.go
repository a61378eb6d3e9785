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

// Package message defines the conversation data model shared by every
// component of the orchestration runtime: roles, content parts, tool
// calls and their results, and the payload shape a caller sends in.
package message

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ravenforge/agentrun/agenterr"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates a ContentPart.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of a structured, multimodal message body.
type ContentPart struct {
	Type PartType `json:"type"`

	// Text is set when Type == PartText.
	Text string `json:"text,omitempty"`

	// The following are set when Type == PartImage.
	MIME    string `json:"mime,omitempty"`
	Base64  string `json:"base64,omitempty"`
	AltText string `json:"altText,omitempty"`
	Name    string `json:"name,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart { return ContentPart{Type: PartText, Text: text} }

// ImagePart builds an image content part.
func ImagePart(mime string, data []byte, altText, name string) ContentPart {
	return ContentPart{
		Type:    PartImage,
		MIME:    mime,
		Base64:  base64.StdEncoding.EncodeToString(data),
		AltText: altText,
		Name:    name,
	}
}

// DataURI renders an image part as an RFC 2397 data URI, the form the
// Context Builder hands to multimodal providers.
func (p ContentPart) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MIME, p.Base64)
}

// Content is a Message's body: either a plain string or an ordered
// sequence of parts. Exactly one of the two representations is populated.
type Content struct {
	Text  string
	Parts []ContentPart
}

// NewTextContent builds a plain-string Content.
func NewTextContent(text string) Content { return Content{Text: text} }

// NewPartsContent builds a structured, multimodal Content.
func NewPartsContent(parts []ContentPart) Content { return Content{Parts: parts} }

// IsStructured reports whether the content carries ordered parts rather
// than a flat string.
func (c Content) IsStructured() bool { return len(c.Parts) > 0 }

// Flatten collapses structured content into a single string by
// concatenating text parts. Image parts are dropped; the Context Builder
// is the place multimodal parts survive into a provider request.
func (c Content) Flatten() string {
	if !c.IsStructured() {
		return c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == PartText {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolCall is a single structured tool invocation request emitted by the
// model inside an assistant message.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is the raw JSON string of arguments, as returned by the
	// provider. Tool ports are responsible for unmarshalling it.
	Arguments string `json:"arguments"`
}

// SubAgentMetadata links an assistant message to the child orchestrator
// run that produced it, when the message was generated via delegation.
type SubAgentMetadata struct {
	AgentID         string `json:"agentId"`
	DelegationDepth int    `json:"delegationDepth"`
	ParentToolCallID string `json:"parentToolCallId,omitempty"`
}

// Message is one entry in a conversation's ordered history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID and Name are set on tool-role messages; ToolCallID must
	// reference a ToolCalls[i].ID from a prior assistant message in the
	// same conversation.
	ToolCallID string `json:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty"`

	SubAgent *SubAgentMetadata `json:"subAgent,omitempty"`
}

// New creates a Message with a fresh ID and current timestamp.
func New(role Role, content Content) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantWithToolCalls builds an assistant message that carries tool
// call requests alongside any textual content.
func NewAssistantWithToolCalls(content Content, calls []ToolCall) *Message {
	m := New(RoleAssistant, content)
	m.ToolCalls = calls
	return m
}

// NewToolResult builds a tool-role message reporting the outcome of one
// tool call back to the model.
func NewToolResult(toolCallID, name, text string) *Message {
	m := New(RoleTool, NewTextContent(text))
	m.ToolCallID = toolCallID
	m.Name = name
	return m
}

// ExecutionStatus is the outcome of a single tool invocation.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
	StatusPending ExecutionStatus = "pending_approval"
	StatusDenied  ExecutionStatus = "denied"
)

// ResultType discriminates how ToolExecutionResult.Result should be
// interpreted by the caller.
type ResultType string

const (
	ResultText ResultType = "text"
	ResultJSON ResultType = "json"
)

// ToolExecutionResult is the normalized outcome of executing one ToolCall.
type ToolExecutionResult struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     ExecutionStatus `json:"status"`
	Type       ResultType      `json:"type"`
	Result     any             `json:"result"`
	DurationMs int64           `json:"durationMs"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// Text renders the result as a string suitable for a tool-role Message,
// stringifying JSON payloads.
func (r ToolExecutionResult) Text() string {
	if r.Type == ResultText {
		if s, ok := r.Result.(string); ok {
			return s
		}
	}
	return fmt.Sprintf("%v", r.Result)
}

// Attachment is a file supplied alongside a UserMessagePayload.
type Attachment struct {
	Name  string
	MIME  string
	Bytes []byte
}

// UserMessagePayload is what a caller submits to Orchestrator.Send.
type UserMessagePayload struct {
	Text        string
	Attachments []Attachment
}

// isTextMIME reports whether a MIME type's bytes should be inlined as a
// text part rather than treated as binary.
func isTextMIME(mime string) bool {
	return strings.HasPrefix(mime, "text/") ||
		mime == "application/json" ||
		mime == "application/x-yaml" ||
		mime == "application/yaml"
}

// ToContent expands the payload into a Message Content, choosing a plain
// string when there are no attachments and structured parts otherwise.
// Non-image, non-text attachments are rejected rather than silently
// dropped; see DESIGN.md.
func (p UserMessagePayload) ToContent() (Content, error) {
	if len(p.Attachments) == 0 {
		return NewTextContent(p.Text), nil
	}

	parts := make([]ContentPart, 0, len(p.Attachments)+1)
	if p.Text != "" {
		parts = append(parts, TextPart(p.Text))
	}
	for _, a := range p.Attachments {
		switch {
		case isTextMIME(a.MIME):
			parts = append(parts, TextPart(string(a.Bytes)))
		case strings.HasPrefix(a.MIME, "image/"):
			parts = append(parts, ImagePart(a.MIME, a.Bytes, "", a.Name))
		default:
			return Content{}, fmt.Errorf("message: unsupported attachment mime %q for %q: %w", a.MIME, a.Name, agenterr.ProtocolViolation)
		}
	}
	return NewPartsContent(parts), nil
}
