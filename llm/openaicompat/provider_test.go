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

package openaicompat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/transport"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, func()) {
	srv := httptest.NewServer(handler)
	p := New(Config{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		AuthStyle: transport.BearerAuth,
		Timeout:   5 * time.Second,
		Retry:     transport.RetryOptions{MaxRetries: 0},
	})
	return p, srv.Close
}

func TestGenerateCompletion_ParsesToolCalls(t *testing.T) {
	p, closeFn := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"index":0,"finish_reason":"tool_calls","message":{
				"role":"assistant","content":null,
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"nyc\"}"}}]
			}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
		}`))
	})
	defer closeFn()

	got, err := p.GenerateCompletion(context.Background(), llm.Request{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "get_weather", got.ToolCalls[0].Name)
	assert.Equal(t, 15, got.Usage.TotalTokens)
	assert.Equal(t, "tool_calls", got.FinishReason)
}

func TestStreamCompletion_MergesDeltasAndFiresHandlers(t *testing.T) {
	body := "" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"id\":\"call_9\",\"function\":{\"name\":\"do\",\"arguments\":\"{\\\"x\\\":\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"function\":{\"arguments\":\"1}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":2,\"total_tokens\":4}}\n\n" +
		"data: [DONE]\n\n"

	p, closeFn := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	})
	defer closeFn()

	var chunks []string
	got, err := p.StreamCompletion(context.Background(), llm.Request{Model: "gpt-4o-mini"}, llm.StreamHandlers{
		OnChunk: func(delta string) { chunks = append(chunks, delta) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	assert.Equal(t, "Hello", got.Content)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "call_9", got.ToolCalls[0].ID)
	assert.Equal(t, "do", got.ToolCalls[0].Name)
	assert.Equal(t, `{"x":1}`, got.ToolCalls[0].Arguments)
	assert.Equal(t, "stop", got.FinishReason)
	assert.Equal(t, 4, got.Usage.TotalTokens)
}

func TestStreamCompletion_MergesParallelToolCallsByIndex(t *testing.T) {
	body := "" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_a\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":1,\"id\":\"call_b\",\"function\":{\"name\":\"get_time\",\"arguments\":\"\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"city\\\":\\\"nyc\\\"}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":1,\"function\":{\"arguments\":\"{\\\"zone\\\":\\\"utc\\\"}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"finish_reason\":\"tool_calls\"}]}\n\n" +
		"data: [DONE]\n\n"

	p, closeFn := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	})
	defer closeFn()

	got, err := p.StreamCompletion(context.Background(), llm.Request{Model: "gpt-4o-mini"}, llm.StreamHandlers{})
	require.NoError(t, err)
	require.Len(t, got.ToolCalls, 2, "two separately-indexed tool calls must not collapse into one")
	assert.Equal(t, "call_a", got.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", got.ToolCalls[0].Name)
	assert.Equal(t, `{"city":"nyc"}`, got.ToolCalls[0].Arguments)
	assert.Equal(t, "call_b", got.ToolCalls[1].ID)
	assert.Equal(t, "get_time", got.ToolCalls[1].Name)
	assert.Equal(t, `{"zone":"utc"}`, got.ToolCalls[1].Arguments)
}
