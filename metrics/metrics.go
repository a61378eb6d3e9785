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

// Package metrics implements the Metrics Port: a per-conversation
// token/cost/tool-call accumulator that notifies subscribers with a
// consistent snapshot after every mutation, backed by Prometheus
// counters for the process-wide view.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ContextWindow reports the model's context window limit against the
// conversation's current usage.
type ContextWindow struct {
	Limit int `json:"limit"`
	Usage int `json:"usage"`
}

// Snapshot is a consistent, point-in-time copy of a conversation's
// accumulated metrics.
type Snapshot struct {
	TotalTokens    int           `json:"totalTokens"`
	Prompt         int           `json:"prompt"`
	Completion     int           `json:"completion"`
	Cached         int           `json:"cached"`
	Reasoning      int           `json:"reasoning"`
	Cost           float64       `json:"cost"`
	LLMCallCount   int           `json:"llmCallCount"`
	ToolCallCount  int           `json:"toolCallCount"`
	RequestCount   int           `json:"requestCount"`
	TotalTimeMs    int64         `json:"totalTimeMs"`
	ContextWindow  ContextWindow `json:"contextWindow"`
}

// Usage is the subset of event.Usage the Metrics Port needs to record a
// completed LLM call, kept separate so metrics does not depend on event.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	ReasoningTokens  int
	Cost             float64
}

// Port is the per-conversation metrics accumulator.
type Port interface {
	RecordLLMCall(conversationID string, u Usage)
	RecordToolCall(conversationID string)
	RecordRequestComplete(conversationID string, elapsed time.Duration)
	SetContextWindow(conversationID string, limit, usage int)
	Snapshot(conversationID string) Snapshot
	Reset(conversationID string)
	Subscribe(conversationID string, fn func(Snapshot)) (unsubscribe func())
}

type conversationState struct {
	mu          sync.Mutex
	snap        Snapshot
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// Registry is the process-wide Metrics Port implementation. Each
// conversation gets its own exclusive accumulator; process totals are
// exposed as Prometheus counters via Handler.
type Registry struct {
	mu            sync.Mutex
	conversations map[string]*conversationState
	gatherer      prometheus.Gatherer

	tokensTotal     *prometheus.CounterVec
	llmCallsTotal   *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	costTotal       *prometheus.CounterVec
}

// NewRegistry creates a Metrics Port and registers its Prometheus
// collectors against reg (pass prometheus.NewRegistry() or
// prometheus.DefaultRegisterer).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		conversations: make(map[string]*conversationState),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "tokens_total",
			Help:      "Total tokens consumed, by kind.",
		}, []string{"kind"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "llm_calls_total",
			Help:      "Total completed LLM calls.",
		}, []string{"conversation_id"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "tool_calls_total",
			Help:      "Total completed tool calls.",
		}, []string{"conversation_id"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrun",
			Name:      "request_duration_seconds",
			Help:      "Duration of a completed orchestrator send() call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"conversation_id"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "cost_usd_total",
			Help:      "Total estimated USD cost of LLM calls.",
		}, []string{"conversation_id"}),
	}
	if reg != nil {
		reg.MustRegister(r.tokensTotal, r.llmCallsTotal, r.toolCallsTotal, r.requestDuration, r.costTotal)
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}
	return r
}

// Handler returns an http.Handler serving this Registry's collectors in
// Prometheus exposition format. It serves an empty body if NewRegistry
// was constructed without a Gatherer (e.g. with nil, in tests).
func (r *Registry) Handler() http.Handler {
	if r.gatherer == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {})
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Registry) state(conversationID string) *conversationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.conversations[conversationID]
	if !ok {
		cs = &conversationState{subscribers: make(map[int]func(Snapshot))}
		r.conversations[conversationID] = cs
	}
	return cs
}

func (r *Registry) RecordLLMCall(conversationID string, u Usage) {
	cs := r.state(conversationID)
	cs.mu.Lock()
	cs.snap.Prompt += u.PromptTokens
	cs.snap.Completion += u.CompletionTokens
	cs.snap.Cached += u.CachedTokens
	cs.snap.Reasoning += u.ReasoningTokens
	cs.snap.TotalTokens += u.PromptTokens + u.CompletionTokens
	cs.snap.Cost += u.Cost
	cs.snap.LLMCallCount++
	snap := cs.snap
	cs.mu.Unlock()
	r.notify(cs, snap)

	r.tokensTotal.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	r.tokensTotal.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	r.tokensTotal.WithLabelValues("cached").Add(float64(u.CachedTokens))
	r.tokensTotal.WithLabelValues("reasoning").Add(float64(u.ReasoningTokens))
	r.llmCallsTotal.WithLabelValues(conversationID).Inc()
	r.costTotal.WithLabelValues(conversationID).Add(u.Cost)
}

func (r *Registry) RecordToolCall(conversationID string) {
	cs := r.state(conversationID)
	cs.mu.Lock()
	cs.snap.ToolCallCount++
	snap := cs.snap
	cs.mu.Unlock()
	r.notify(cs, snap)

	r.toolCallsTotal.WithLabelValues(conversationID).Inc()
}

func (r *Registry) RecordRequestComplete(conversationID string, elapsed time.Duration) {
	cs := r.state(conversationID)
	cs.mu.Lock()
	cs.snap.RequestCount++
	cs.snap.TotalTimeMs += elapsed.Milliseconds()
	snap := cs.snap
	cs.mu.Unlock()
	r.notify(cs, snap)

	r.requestDuration.WithLabelValues(conversationID).Observe(elapsed.Seconds())
}

func (r *Registry) SetContextWindow(conversationID string, limit, usage int) {
	cs := r.state(conversationID)
	cs.mu.Lock()
	cs.snap.ContextWindow = ContextWindow{Limit: limit, Usage: usage}
	snap := cs.snap
	cs.mu.Unlock()
	r.notify(cs, snap)
}

func (r *Registry) Snapshot(conversationID string) Snapshot {
	cs := r.state(conversationID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.snap
}

func (r *Registry) Reset(conversationID string) {
	cs := r.state(conversationID)
	cs.mu.Lock()
	cs.snap = Snapshot{}
	snap := cs.snap
	cs.mu.Unlock()
	r.notify(cs, snap)
}

func (r *Registry) Subscribe(conversationID string, fn func(Snapshot)) func() {
	cs := r.state(conversationID)
	cs.mu.Lock()
	id := cs.nextSubID
	cs.nextSubID++
	cs.subscribers[id] = fn
	cs.mu.Unlock()

	return func() {
		cs.mu.Lock()
		delete(cs.subscribers, id)
		cs.mu.Unlock()
	}
}

// notify delivers the same immutable snapshot value to every subscriber,
// outside the state lock, so a slow subscriber can't block mutators.
func (r *Registry) notify(cs *conversationState, snap Snapshot) {
	cs.mu.Lock()
	fns := make([]func(Snapshot), 0, len(cs.subscribers))
	for _, fn := range cs.subscribers {
		fns = append(fns, fn)
	}
	cs.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
