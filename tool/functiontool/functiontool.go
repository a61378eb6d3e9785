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

// Package functiontool wraps a plain Go function as a tool.Tool.
// Parameters are described by a struct type and its JSON Schema is
// derived automatically with invopop/jsonschema so callers never
// hand-write the schema the model sees.
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Func is the shape every function tool implements: decode args into a
// typed struct (via the json round-trip New performs), run, return a
// JSON-serializable result.
type Func[T any] func(ctx context.Context, args T) (any, error)

// Tool adapts a typed Func into tool.Tool without importing the tool
// package's Tool interface directly, so functiontool has no dependency
// on its consumer (satisfied structurally).
type Tool[T any] struct {
	name        string
	description string
	approval    bool
	schema      map[string]any
	fn          Func[T]
}

// New builds a Tool for fn, deriving the parameter schema from T's JSON
// tags. Pass requiresApproval=true for HITL-gated tools (destructive
// filesystem or network actions).
func New[T any](name, description string, requiresApproval bool, fn Func[T]) *Tool[T] {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(new(T))
	raw, _ := json.Marshal(schema)
	var schemaMap map[string]any
	_ = json.Unmarshal(raw, &schemaMap)

	return &Tool[T]{
		name:        name,
		description: description,
		approval:    requiresApproval,
		schema:      schemaMap,
		fn:          fn,
	}
}

func (t *Tool[T]) Name() string           { return t.name }
func (t *Tool[T]) Description() string    { return t.description }
func (t *Tool[T]) Schema() map[string]any { return t.schema }
func (t *Tool[T]) RequiresApproval() bool { return t.approval }

// Call decodes args (already-parsed JSON object from the model's tool
// call) into T and invokes fn.
func (t *Tool[T]) Call(ctx context.Context, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("functiontool: re-encoding arguments: %w", err)
	}
	var typed T
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("functiontool: decoding arguments into %T: %w", typed, err)
	}
	return t.fn(ctx, typed)
}
