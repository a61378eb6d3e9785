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

// Package orchestrator implements the agent orchestrator: the outer
// reasoning loop that alternates LLM calls and tool execution until the
// model stops requesting tools, an iteration budget is exhausted, or the
// caller cancels. Its outer/inner loop structure is generalized down to
// a simple {role, content, tool_calls}/AgentEvent vocabulary.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravenforge/agentrun/agenterr"
	"github.com/ravenforge/agentrun/contextbuilder"
	"github.com/ravenforge/agentrun/event"
	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/memory"
	"github.com/ravenforge/agentrun/message"
	"github.com/ravenforge/agentrun/metrics"
	"github.com/ravenforge/agentrun/tool"
)

var tracer = otel.Tracer("github.com/ravenforge/agentrun/orchestrator")

// DefaultMaxIterations bounds the outer loop's iteration budget.
const DefaultMaxIterations = 25

// Config wires an Orchestrator to its ports. AgentID is empty for the
// root orchestrator and set to the specialist's name for a delegated
// child, so emitted events can be attributed via event.Event.AgentID.
type Config struct {
	AgentID       string
	SystemPrompt  string
	Model         string
	Multimodal    bool
	MaxIterations int
	Temperature   *float64
	MaxTokens     *int
	// Stream selects llm.Port.StreamCompletion over GenerateCompletion so
	// each content delta is re-emitted as a llm_chunk event as it
	// arrives, instead of only after the full completion lands.
	Stream bool

	LLM     llm.Port
	Tools   tool.Port
	Memory  memory.Port
	Metrics metrics.Port
	Events  event.Port
}

// Orchestrator runs the send operation against one conversation's memory
// scope.
type Orchestrator struct {
	cfg     Config
	builder *contextbuilder.Builder
	exec    *tool.Executor
}

// New creates an Orchestrator. cfg.Tools may be nil for a model with no
// tool catalog.
func New(cfg Config, exec *tool.Executor) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		cfg:     cfg,
		builder: contextbuilder.New(cfg.Multimodal),
		exec:    exec,
	}
}

// Send runs the orchestration loop for a new user turn on conversationID:
// append the user message, then iterate LLM-call → tool-execution until
// the model returns no tool calls, the iteration budget is exhausted, or
// ctx is canceled. It returns the final assistant message.
func (o *Orchestrator) Send(ctx context.Context, conversationID string, payload message.UserMessagePayload) (result *message.Message, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Send", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
		attribute.String("agent_id", o.cfg.AgentID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	defer func() {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.RecordRequestComplete(conversationID, time.Since(start))
		}
	}()

	content, err := payload.ToContent()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	userMsg := message.New(message.RoleUser, content)
	o.emit(conversationID, userMsg.ID, func(e *event.Event) {
		e.Kind = event.KindMessageStarted
		e.UserContent = content.Flatten()
		if o.cfg.Tools != nil {
			for _, t := range o.cfg.Tools.List() {
				e.ToolNames = append(e.ToolNames, t.Name())
			}
		}
	})
	if err := o.appendAndEmit(ctx, conversationID, userMsg); err != nil {
		return nil, err
	}

	var finalMsg *message.Message
	for iteration := 0; iteration < o.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			o.emitError(conversationID, userMsg.ID, event.ErrAborted, err.Error())
			return nil, fmt.Errorf("orchestrator: %w: %w", agenterr.Aborted, err)
		}

		assistantMsg, toolCalls, err := o.runOneStep(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		finalMsg = assistantMsg

		if len(toolCalls) == 0 {
			break
		}
		if iteration == o.cfg.MaxIterations-1 {
			o.emitError(conversationID, assistantMsg.ID, event.ErrIterationLimit, "iteration budget exhausted")
			return finalMsg, agenterr.IterationLimit
		}
	}

	o.emit(conversationID, finalMsg.ID, func(e *event.Event) { e.Kind = event.KindDone })
	return finalMsg, nil
}

// runOneStep performs one LLM call and, if the model requested tools,
// executes them and appends their results. HITL denial messages are not
// preinjected here; the Executor returns
// message.StatusPending/StatusDenied results instead.
func (o *Orchestrator) runOneStep(ctx context.Context, conversationID string) (*message.Message, []message.ToolCall, error) {
	history, err := o.cfg.Memory.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: loading history: %w", agenterr.MemoryError)
	}

	req := llm.Request{
		Model:       o.cfg.Model,
		Messages:    o.builder.Build(o.cfg.SystemPrompt, history, nil),
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}
	if o.cfg.Tools != nil {
		for _, t := range o.cfg.Tools.List() {
			d := tool.Describe(t)
			req.Tools = append(req.Tools, llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
		}
	}

	llmCtx, llmSpan := tracer.Start(ctx, "orchestrator.llm_call", trace.WithAttributes(attribute.String("model", o.cfg.Model)))
	llmStart := time.Now()
	o.emit(conversationID, "", func(e *event.Event) { e.Kind = event.KindLLMCallStarted })

	var completion llm.Completion
	if o.cfg.Stream {
		completion, err = o.cfg.LLM.StreamCompletion(llmCtx, req, llm.StreamHandlers{
			OnChunk: func(delta string) {
				o.emit(conversationID, "", func(e *event.Event) {
					e.Kind = event.KindLLMChunk
					e.Delta = delta
				})
			},
		})
	} else {
		completion, err = o.cfg.LLM.GenerateCompletion(llmCtx, req)
	}
	if err != nil {
		llmSpan.RecordError(err)
		llmSpan.SetStatus(codes.Error, err.Error())
		llmSpan.End()
		o.emitError(conversationID, "", classifyLLMError(err), err.Error())
		return nil, nil, fmt.Errorf("orchestrator: llm call failed: %w", err)
	}
	llmSpan.SetAttributes(
		attribute.Int("prompt_tokens", completion.Usage.PromptTokens),
		attribute.Int("completion_tokens", completion.Usage.CompletionTokens),
	)
	llmSpan.End()

	usage := &event.Usage{
		PromptTokens: completion.Usage.PromptTokens, CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens: completion.Usage.TotalTokens, ReasoningTokens: completion.Usage.ReasoningTokens,
		CachedTokens: completion.Usage.CachedTokens, Cost: completion.Usage.Cost,
	}
	o.emit(conversationID, "", func(e *event.Event) {
		e.Kind = event.KindLLMCallCompleted
		e.Usage = usage
		e.FinishReason = completion.FinishReason
		e.ResponseTimeMs = time.Since(llmStart).Milliseconds()
	})

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordLLMCall(conversationID, metrics.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			CachedTokens:     completion.Usage.CachedTokens,
			ReasoningTokens:  completion.Usage.ReasoningTokens,
			Cost:             completion.Usage.Cost,
		})
	}

	var assistantMsg *message.Message
	if len(completion.ToolCalls) > 0 {
		assistantMsg = message.NewAssistantWithToolCalls(completion.Content, completion.ToolCalls)
	} else {
		assistantMsg = message.New(message.RoleAssistant, message.NewTextContent(completion.Content))
	}
	if err := o.appendAndEmit(ctx, conversationID, assistantMsg); err != nil {
		return nil, nil, err
	}

	if len(completion.ToolCalls) == 0 {
		o.emit(conversationID, assistantMsg.ID, func(e *event.Event) {
			e.Kind = event.KindAssistantMessage
			e.AssistantText = completion.Content
		})
		return assistantMsg, nil, nil
	}

	if o.cfg.Tools == nil || o.exec == nil {
		return nil, nil, fmt.Errorf("orchestrator: model requested tools but none are configured: %w", agenterr.ProtocolViolation)
	}

	o.emit(conversationID, assistantMsg.ID, func(e *event.Event) {
		e.Kind = event.KindToolCalls
		e.ToolCalls = completion.ToolCalls
	})

	// tool_result events must fire in completion order, but memory append
	// below stays in call order for a deterministic conversation history,
	// so the two are driven by separate mechanisms: the Executor's
	// completion-order hook for events, the call-order results slice for
	// the append loop.
	o.exec.SetHooks(nil, func(callID, name string, r message.ToolExecutionResult) {
		if o.cfg.Metrics != nil && r.Status == message.StatusSuccess {
			o.cfg.Metrics.RecordToolCall(conversationID)
		}
		o.emit(conversationID, assistantMsg.ID, func(e *event.Event) {
			e.Kind = event.KindToolResult
			e.ToolCallID = r.ID
			e.ToolResult = &r
		})
	})

	toolCtx, toolSpan := tracer.Start(ctx, "orchestrator.tool_calls", trace.WithAttributes(attribute.Int("count", len(completion.ToolCalls))))
	results := o.exec.RunAll(toolCtx, completion.ToolCalls)
	toolSpan.End()

	for i := range results {
		r := results[i]
		toolMsg := message.NewToolResult(r.ID, r.Name, r.Text())
		if err := o.appendAndEmit(ctx, conversationID, toolMsg); err != nil {
			return nil, nil, err
		}
	}

	return assistantMsg, completion.ToolCalls, nil
}

func (o *Orchestrator) appendAndEmit(ctx context.Context, conversationID string, m *message.Message) error {
	if err := o.cfg.Memory.Append(ctx, conversationID, m); err != nil {
		return fmt.Errorf("orchestrator: persisting message: %w", agenterr.MemoryError)
	}
	o.emit(conversationID, m.ID, func(e *event.Event) { e.Kind = event.KindMemoryAppended })
	return nil
}

func (o *Orchestrator) emit(conversationID, messageID string, mutate func(*event.Event)) {
	if o.cfg.Events == nil {
		return
	}
	e := event.New(event.Kind(""), conversationID, messageID)
	e.AgentID = o.cfg.AgentID
	mutate(&e)
	o.cfg.Events.Emit(e)
}

func (o *Orchestrator) emitError(conversationID, messageID string, kind event.ErrorKind, msg string) {
	if o.cfg.Events == nil {
		return
	}
	e := event.New(event.KindError, conversationID, messageID)
	e.AgentID = o.cfg.AgentID
	e.ErrorKind = kind
	e.ErrorMsg = msg
	o.cfg.Events.Emit(e)
}

func classifyLLMError(err error) event.ErrorKind {
	if agenterr.Retryable(err) {
		return event.ErrTransport
	}
	return event.ErrProtocol
}
