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

package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_BasicFrames(t *testing.T) {
	body := "data: {\"a\":1}\n\nevent: tool_call\ndata: {\"b\":2}\n\n"
	r := NewReader(strings.NewReader(body))

	f1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "", f1.Event)
	assert.Equal(t, `{"a":1}`, string(f1.Data))

	f2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "tool_call", f2.Event)
	assert.Equal(t, `{"b":2}`, string(f2.Data))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_MultiLineData(t *testing.T) {
	body := "data: line1\ndata: line2\n\n"
	r := NewReader(strings.NewReader(body))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(f.Data))
}

func TestReader_IgnoresComments(t *testing.T) {
	body := ": keep-alive\ndata: x\n\n"
	r := NewReader(strings.NewReader(body))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", string(f.Data))
}

func TestReader_TrailingFrameWithoutBlankLine(t *testing.T) {
	body := "data: last"
	r := NewReader(strings.NewReader(body))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "last", string(f.Data))
}

func TestIsDone(t *testing.T) {
	assert.True(t, IsDone([]byte(" [DONE] ")))
	assert.False(t, IsDone([]byte(`{"x":1}`)))
}
