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

package taskstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_StartThenComplete(t *testing.T) {
	s := New()
	defer s.Close()

	task := s.Start("task-1")
	assert.Equal(t, StatusRunning, task.Status)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Complete(task, "the result")
	}()

	got, ok := s.Wait(context.Background(), "task-1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "the result", got.Result)
}

func TestStore_Fail(t *testing.T) {
	s := New()
	defer s.Close()

	task := s.Start("task-2")
	s.Fail(task, errors.New("boom"))

	got, ok := s.Get("task-2")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.EqualError(t, got.Err, "boom")
}

func TestStore_WaitRespectsContextCancellation(t *testing.T) {
	s := New()
	defer s.Close()

	task := s.Start("task-3")
	_ = task

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	got, ok := s.Wait(ctx, "task-3")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestStore_GetUnknownID(t *testing.T) {
	s := New()
	defer s.Close()

	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestStore_SweepEvictsOnlyAfterRetentionWindow(t *testing.T) {
	s := New()
	defer s.Close()

	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	task := s.Start("task-old")
	s.Complete(task, "done")

	s.sweep()
	_, ok := s.Get("task-old")
	assert.True(t, ok, "task should still be retained before MinRetention elapses")

	fakeNow = fakeNow.Add(MinRetention + time.Minute)
	s.sweep()
	_, ok = s.Get("task-old")
	assert.False(t, ok, "task should be evicted after MinRetention elapses")
}
