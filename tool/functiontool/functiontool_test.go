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

package functiontool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City string `json:"city" jsonschema:"required,description=City name"`
}

func TestTool_CallDecodesArgs(t *testing.T) {
	tl := New("get_weather", "Gets the weather", false, func(ctx context.Context, args weatherArgs) (any, error) {
		return "sunny in " + args.City, nil
	})

	assert.Equal(t, "get_weather", tl.Name())
	assert.False(t, tl.RequiresApproval())
	require.NotNil(t, tl.Schema())

	out, err := tl.Call(context.Background(), map[string]any{"city": "nyc"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in nyc", out)
}

func TestTool_CallPropagatesDecodeError(t *testing.T) {
	tl := New("strict", "", false, func(ctx context.Context, args weatherArgs) (any, error) {
		return nil, nil
	})
	_, err := tl.Call(context.Background(), map[string]any{"city": 42})
	require.Error(t, err)
}
