// Copyright 2025 The oneprompt Authors
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

// Package schema manages agent output schemas.
//
// Every agent declares a return type name in its config. The name resolves
// either to a return_type.json file sitting next to the agent's prompt (a raw
// JSON Schema document) or to a schema factory registered at build time.
// No runtime code evaluation is involved.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/invopop/jsonschema"
)

// Step is one entry of a plan, the canonical structured output shape the
// built-in termination strategies inspect.
type Step struct {
	StepName string `json:"step_name" jsonschema:"description=Short unique name of the plan step"`
	Checked  bool   `json:"checked" jsonschema:"description=Whether the step has been completed and verified"`
}

// Output is a parsed final output of one model turn. Fields outside the
// canonical ones stay available through Raw.
type Output struct {
	Plan    []Step `json:"plan,omitempty"`
	Summary string `json:"summary,omitempty"`
	Content string `json:"content,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseOutput decodes a model's structured output. Missing or malformed plan
// fields degrade to an empty plan; the strategies turn that into a corrective
// message rather than an error.
func ParseOutput(data []byte) *Output {
	out := &Output{Raw: append(json.RawMessage(nil), data...)}
	if err := json.Unmarshal(data, out); err != nil {
		return &Output{Raw: out.Raw}
	}
	return out
}

// PlanResponse is the default return type: a plan plus an optional summary.
type PlanResponse struct {
	Plan    []Step `json:"plan" jsonschema:"description=Ordered plan; every step must end up checked"`
	Summary string `json:"summary,omitempty" jsonschema:"description=One paragraph summary of the result"`
}

// TextResponse is a minimal return type carrying plain text content.
type TextResponse struct {
	Content string `json:"content" jsonschema:"description=The agent's answer"`
}

// Definition is a compiled output schema handed to the agent runner.
type Definition struct {
	Name   string
	Schema map[string]any
}

// Factory produces a schema definition.
type Factory func() (*Definition, error)

// Registry maps return type names to schema factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry returns a registry with the built-in return types.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("PlanResponse", Reflect[PlanResponse]("PlanResponse"))
	r.MustRegister("TextResponse", Reflect[TextResponse]("TextResponse"))
	return r
}

func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("schema name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("schema '%s' already registered", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve loads the schema named by a config's return_type. A
// return_type.json file in the agent folder wins over a registered factory.
func (r *Registry) Resolve(folder, name string) (*Definition, error) {
	if folder != "" {
		path := filepath.Join(folder, "return_type.json")
		if _, err := os.Stat(path); err == nil {
			return loadSchemaFile(path, name)
		}
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("return type '%s' is neither a return_type.json in %s nor a registered schema", name, folder)
	}
	return factory()
}

func loadSchemaFile(path, name string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	return &Definition{Name: name, Schema: doc}, nil
}

// Reflect builds a factory that derives the JSON schema from a Go struct.
func Reflect[T any](name string) Factory {
	return func() (*Definition, error) {
		reflector := &jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		}
		var zero T
		s := reflector.Reflect(&zero)

		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshaling reflected schema for %s: %w", name, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding reflected schema for %s: %w", name, err)
		}
		return &Definition{Name: name, Schema: doc}, nil
	}
}
