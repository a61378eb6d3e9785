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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenforge/agentrun/message"
)

func TestInMemory_AppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	require.NoError(t, store.Append(ctx, "conv1", message.New(message.RoleUser, message.NewTextContent("hi"))))
	require.NoError(t, store.Append(ctx, "conv1", message.New(message.RoleAssistant, message.NewTextContent("hello"))))

	got, err := store.Get(ctx, "conv1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, message.RoleUser, got[0].Role)
	assert.Equal(t, message.RoleAssistant, got[1].Role)
}

func TestInMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	require.NoError(t, store.Append(ctx, "k", message.New(message.RoleUser, message.NewTextContent("a"))))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = message.New(message.RoleUser, message.NewTextContent("mutated"))

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Content.Flatten())
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	m := message.New(message.RoleUser, message.NewTextContent("persisted"))
	require.NoError(t, store.Append(ctx, "conv-a", m))

	got, err := store.Get(ctx, "conv-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Content.Flatten())

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "conv-a")

	require.NoError(t, store.Delete(ctx, "conv-a"))
	got, err = store.Get(ctx, "conv-a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryMetadata_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryMetadata()
	require.NoError(t, m.Set(ctx, "a", 1))
	require.NoError(t, m.Set(ctx, "b", "two"))

	snap, err := m.ExportSnapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))

	keys, _ := m.Keys(ctx)
	assert.Empty(t, keys)

	require.NoError(t, m.ImportSnapshot(ctx, snap))
	v, ok, err := m.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", v)
}
