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

// Package runner drives one autonomous turn of an agent: it loops the model
// against the agent's tools until the model produces a final structured
// answer instead of more tool calls.
package runner

import (
	"context"

	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

// ToolDefinition is the function-call surface advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolExecutor hands tool calls off to whoever owns the tools. The payload
// is always text; execution failures are rendered into it so the model can
// react.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, call protocol.ToolCall) string
}

// Hooks observe a run. Nil funcs are skipped.
type Hooks struct {
	OnToolStart     func(agentName, toolName string, args map[string]any)
	OnGenerationEnd func(agentName string, output *schema.Output)
}

// Params is everything one run needs.
type Params struct {
	AgentName    string
	SystemPrompt string
	Input        []protocol.Message
	Model        string
	Schema       *schema.Definition
	Tools        ToolExecutor
	Hooks        Hooks
}

// Result is what a completed run leaves behind. Input is the full transcript
// including everything generated this run, ready to be fed into the next
// turn.
type Result struct {
	FinalOutput *schema.Output
	Input       []protocol.Message
}

// AgentRunner executes one turn.
type AgentRunner interface {
	Run(ctx context.Context, params Params) (*Result, error)
}
