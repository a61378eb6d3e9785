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

// Package openaicompat implements llm.Port against any provider exposing
// the OpenAI chat-completions wire format (OpenAI itself, and the many
// self-hosted runtimes that mirror it). It builds its HTTP pipeline from
// the transport package and decodes streaming responses frame-by-frame
// with the sse package, merging tool-call argument deltas as they
// accumulate across chunks.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ravenforge/agentrun/agenterr"
	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/message"
	"github.com/ravenforge/agentrun/sse"
	"github.com/ravenforge/agentrun/transport"
)

// Config configures a Provider.
type Config struct {
	BaseURL    string // e.g. "https://api.openai.com/v1"
	APIKey     string
	AuthHeader string // used when AuthStyle is APIKeyHeader; ignored otherwise
	AuthStyle  transport.AuthStyle
	Timeout    time.Duration
	Retry      transport.RetryOptions
	RateLimit  transport.RateLimitConfig // zero value falls back to Chain's default
}

// Provider is an llm.Port backed by an OpenAI-compatible /chat/completions
// endpoint.
type Provider struct {
	cfg    Config
	client *transport.Client
}

// New builds a Provider with the standard
// Retry(LLMError(Auth(RateLimit(Fetch)))) transport chain.
func New(cfg Config) *Provider {
	var chain http.RoundTripper
	if cfg.RateLimit.RequestsPerSecond > 0 {
		chain = transport.ChainWithRateLimit(cfg.Timeout, cfg.AuthStyle, cfg.AuthHeader, cfg.APIKey, cfg.Retry, cfg.RateLimit)
	} else {
		chain = transport.Chain(cfg.Timeout, cfg.AuthStyle, cfg.AuthHeader, cfg.APIKey, cfg.Retry)
	}
	return &Provider{cfg: cfg, client: transport.NewClient(chain)}
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	Delta        wireMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func toWireMessages(msgs []llm.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: string(m.Role), Name: m.Name, ToolCallID: m.ToolCallID}
		if len(m.Parts) > 0 {
			parts := make([]map[string]any, 0, len(m.Parts))
			for _, p := range m.Parts {
				switch p.Type {
				case "text":
					parts = append(parts, map[string]any{"type": "text", "text": p.Text})
				case "image_url":
					parts = append(parts, map[string]any{"type": "image_url", "image_url": map[string]string{"url": p.ImageURL}})
				}
			}
			b, _ := json.Marshal(parts)
			wm.Content = b
		} else {
			b, _ := json.Marshal(m.Text)
			wm.Content = b
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(defs []llm.ToolDefinition) []wireTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(defs))
	for _, d := range defs {
		wt := wireTool{Type: "function"}
		wt.Function.Name = d.Name
		wt.Function.Description = d.Description
		wt.Function.Parameters = d.Parameters
		out = append(out, wt)
	}
	return out
}

func toWireToolChoice(tc *llm.ToolChoice) any {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case "none", "auto", "required":
		return tc.Mode
	default:
		if tc.Name != "" {
			return map[string]any{"type": "function", "function": map[string]string{"name": tc.Name}}
		}
		return "auto"
	}
}

func buildRequest(req llm.Request, stream bool) wireRequest {
	return wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Tools:       toWireTools(req.Tools),
		ToolChoice:  toWireToolChoice(req.ToolChoice),
		Stream:      stream,
	}
}

func normalizeUsage(u *wireUsage) llm.Usage {
	if u == nil {
		return llm.Usage{}
	}
	out := llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		CachedTokens:     u.PromptTokensDetails.CachedTokens,
		ReasoningTokens:  u.CompletionTokensDetails.ReasoningTokens,
	}
	out.Normalize()
	return out
}

// GenerateCompletion issues a non-streaming completion request.
func (p *Provider) GenerateCompletion(ctx context.Context, req llm.Request) (llm.Completion, error) {
	wreq := buildRequest(req, false)
	resp, err := p.client.PostJSON(ctx, p.cfg.BaseURL+"/chat/completions", wreq, nil)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("openaicompat: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("openaicompat: reading response: %w", err)
	}

	var wresp wireResponse
	if err := json.Unmarshal(body, &wresp); err != nil {
		return llm.Completion{}, &agenterr.LLMError{Message: "malformed response body", Cause: err}
	}
	if wresp.Error != nil {
		return llm.Completion{}, &agenterr.LLMError{Message: wresp.Error.Message, StatusCode: resp.StatusCode}
	}
	if len(wresp.Choices) == 0 {
		return llm.Completion{}, agenterr.ProtocolViolation
	}

	choice := wresp.Choices[0]
	var toolCalls []message.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, message.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	var text string
	_ = json.Unmarshal(choice.Message.Content, &text)

	return llm.Completion{
		Content:      text,
		ToolCalls:    toolCalls,
		Usage:        normalizeUsage(wresp.Usage),
		FinishReason: choice.FinishReason,
	}, nil
}

// toolCallAccumulator merges index-addressed tool_call deltas across SSE
// chunks into one complete call, keyed by its index within the response.
type toolCallAccumulator struct {
	id, name string
	args     strings.Builder
}

// StreamCompletion issues a streaming completion request and feeds
// handlers as frames arrive, returning the fully aggregated Completion
// once the stream ends ("[DONE]" received or the body reaches EOF);
// frames that follow a finish_reason are still read.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.Request, handlers llm.StreamHandlers) (llm.Completion, error) {
	wreq := buildRequest(req, true)
	resp, err := p.client.PostJSON(ctx, p.cfg.BaseURL+"/chat/completions", wreq, map[string]string{"Accept": "text/event-stream"})
	if err != nil {
		return llm.Completion{}, fmt.Errorf("openaicompat: request failed: %w", err)
	}
	defer resp.Body.Close()

	reader := sse.NewReader(resp.Body)
	var (
		contentBuf   strings.Builder
		calls        = map[int]*toolCallAccumulator{}
		order        []int
		usage        llm.Usage
		finishReason string
	)

	for {
		frame, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return llm.Completion{}, fmt.Errorf("openaicompat: reading stream: %w", err)
		}
		if sse.IsDone(frame.Data) {
			break
		}
		if len(frame.Data) == 0 {
			continue
		}

		var chunk wireResponse
		if err := json.Unmarshal(frame.Data, &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = normalizeUsage(chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != nil {
			var delta string
			if json.Unmarshal(choice.Delta.Content, &delta) == nil && delta != "" {
				contentBuf.WriteString(delta)
				if handlers.OnChunk != nil {
					handlers.OnChunk(delta)
				}
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			acc, ok := calls[idx]
			if !ok {
				acc = &toolCallAccumulator{}
				calls[idx] = acc
				order = append(order, idx)
			}
			if tc.ID != "" {
				acc.id += tc.ID
			}
			if tc.Function.Name != "" {
				acc.name += tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
			}
			if handlers.OnToolCallDelta != nil {
				handlers.OnToolCallDelta(idx, tc.ID, tc.Function.Name, tc.Function.Arguments)
			}
		}

		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	toolCalls := make([]message.ToolCall, 0, len(order))
	for _, idx := range order {
		acc := calls[idx]
		toolCalls = append(toolCalls, message.ToolCall{ID: acc.id, Name: acc.name, Arguments: acc.args.String()})
	}

	if handlers.OnStreamFinish != nil {
		handlers.OnStreamFinish(finishReason, &usage)
	}

	return llm.Completion{
		Content:      contentBuf.String(),
		ToolCalls:    toolCalls,
		Usage:        usage,
		FinishReason: finishReason,
	}, nil
}

// GetModels lists models from the provider's /models endpoint.
func (p *Provider) GetModels(ctx context.Context) ([]llm.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: building request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openaicompat: decoding models: %w", err)
	}

	out := make([]llm.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, llm.Model{ID: m.ID, Name: m.ID})
	}
	return out, nil
}
