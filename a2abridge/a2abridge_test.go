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

package a2abridge

import (
	"strings"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenforge/agentrun/llm"
	"github.com/ravenforge/agentrun/message"
)

func TestNew_RequiresNameAndTarget(t *testing.T) {
	_, err := New(Config{URL: "http://localhost:9000"})
	assert.Error(t, err)

	_, err = New(Config{Name: "specialist"})
	assert.Error(t, err)
}

func TestNew_DerivesAgentCardSourceFromURL(t *testing.T) {
	p, err := New(Config{Name: "specialist", URL: "http://localhost:9000/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/.well-known/agent.json", p.cfg.AgentCardSource)
}

func TestLastUserText_FindsMostRecentUserMessage(t *testing.T) {
	req := llm.Request{Messages: []llm.ChatMessage{
		{Role: message.RoleUser, Text: "first"},
		{Role: message.RoleAssistant, Text: "reply"},
		{Role: message.RoleUser, Text: "second"},
	}}
	assert.Equal(t, "second", lastUserText(req))
}

func TestLastUserText_NoUserMessageReturnsEmpty(t *testing.T) {
	req := llm.Request{Messages: []llm.ChatMessage{{Role: message.RoleAssistant, Text: "reply"}}}
	assert.Equal(t, "", lastUserText(req))
}

func TestAppendMessageText_ConcatenatesTextParts(t *testing.T) {
	var b strings.Builder
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "hello "}, a2a.TextPart{Text: "world"})
	appendMessageText(&b, msg)
	assert.Equal(t, "hello world", b.String())
}
