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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Monotonicity(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	var seen []Snapshot
	unsub := reg.Subscribe("c1", func(s Snapshot) { seen = append(seen, s) })
	defer unsub()

	reg.RecordLLMCall("c1", Usage{PromptTokens: 10, CompletionTokens: 5})
	reg.RecordToolCall("c1")
	reg.RecordLLMCall("c1", Usage{PromptTokens: 3, CompletionTokens: 1})
	reg.RecordRequestComplete("c1", 20*time.Millisecond)

	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].TotalTokens, seen[i-1].TotalTokens)
		assert.GreaterOrEqual(t, seen[i].LLMCallCount, seen[i-1].LLMCallCount)
		assert.GreaterOrEqual(t, seen[i].ToolCallCount, seen[i-1].ToolCallCount)
	}

	final := reg.Snapshot("c1")
	assert.Equal(t, 13, final.Prompt)
	assert.Equal(t, 6, final.Completion)
	assert.Equal(t, 2, final.LLMCallCount)
	assert.Equal(t, 1, final.ToolCallCount)
	assert.Equal(t, 1, final.RequestCount)
}

func TestRegistry_Reset(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.RecordLLMCall("c1", Usage{PromptTokens: 10})
	reg.Reset("c1")
	assert.Equal(t, Snapshot{}, reg.Snapshot("c1"))
}

func TestRegistry_IsolatedPerConversation(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.RecordLLMCall("a", Usage{PromptTokens: 1})
	reg.RecordLLMCall("b", Usage{PromptTokens: 99})
	assert.Equal(t, 1, reg.Snapshot("a").Prompt)
	assert.Equal(t, 99, reg.Snapshot("b").Prompt)
}
