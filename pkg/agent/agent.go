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

// Package agent ties one configured agent together: its instructions, its
// structured output schema, the capability server other agents call it
// through, and the client connections to its own tools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"

	"github.com/oneprompt/oneprompt/pkg/config"
	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/mcp"
	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/runner"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

const serverVersion = "0.2.0"

// Agent is a loaded agent. It hosts an SSE capability server with
// start_agent_<name> and _start_and_wait_<name>, and holds clients to the
// servers of its own tools (other agents or external MCP servers).
type Agent struct {
	cfg       *config.AgentConfig
	prompt    string
	schemaDef *schema.Definition
	jobs      *job.Service

	server  *mcp.Server
	clients []*mcp.Client

	mu    sync.RWMutex
	model string
}

// New builds the agent and its capability server. The server is not
// listening yet; call StartServer.
func New(cfg *config.AgentConfig, prompt string, schemaDef *schema.Definition, clients []*mcp.Client, jobs *job.Service) *Agent {
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}

	a := &Agent{
		cfg:       cfg,
		prompt:    prompt,
		schemaDef: schemaDef,
		jobs:      jobs,
		clients:   clients,
		model:     model,
	}
	a.server = mcp.NewServer(fmt.Sprintf("%s_mcp", cfg.Name), serverVersion, mcp.NextAgentPort())
	a.registerTools()
	return a
}

func (a *Agent) Name() string { return a.cfg.Name }

func (a *Agent) StrategyName() string { return a.cfg.StrategyName }

func (a *Agent) SystemPrompt() string { return a.prompt }

func (a *Agent) Schema() *schema.Definition { return a.schemaDef }

// ServerURL is the SSE endpoint other agents connect to.
func (a *Agent) ServerURL() string { return a.server.URL() }

func (a *Agent) Model() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetModel swaps the model identifier at runtime.
func (a *Agent) SetModel(model string) {
	a.mu.Lock()
	a.model = model
	a.mu.Unlock()
	slog.Info("Agent model changed", "agent", a.cfg.Name, "model", model)
}

// StartServer brings the capability server up in the background.
func (a *Agent) StartServer() <-chan error {
	return a.server.Start()
}

// ConnectTools dials every tool server that is not connected yet. Called
// before the first turn of each job so agents may come up in any order.
func (a *Agent) ConnectTools(ctx context.Context) error {
	for _, client := range a.clients {
		if client.Connected() {
			continue
		}
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("agent %s: %w", a.cfg.Name, err)
		}
	}
	return nil
}

// Stop shuts the capability server down and closes tool connections.
func (a *Agent) Stop(ctx context.Context) error {
	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = err
	}
	for _, client := range a.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type startArgs struct {
	Inputs string `mapstructure:"inputs"`
}

type startAndWaitArgs struct {
	AgentInputs string `mapstructure:"agent_inputs"`
	YourJobID   string `mapstructure:"your_job_id"`
}

func (a *Agent) registerTools() {
	a.server.AddTool(
		mcpgo.NewTool(fmt.Sprintf("start_agent_%s", a.cfg.Name),
			mcpgo.WithDescription(fmt.Sprintf("Starts the %s agent async. No wait for it's response.", a.cfg.Name)),
			mcpgo.WithString("inputs", mcpgo.Required(), mcpgo.Description(a.cfg.InputsDescription)),
		),
		a.handleStart,
	)
	a.server.AddTool(
		mcpgo.NewTool(fmt.Sprintf("_start_and_wait_%s", a.cfg.Name),
			mcpgo.WithDescription(fmt.Sprintf("Starts a new job for the agent %s and waits until it's finished.", a.cfg.Name)),
			mcpgo.WithString("agent_inputs", mcpgo.Required(), mcpgo.Description(a.cfg.InputsDescription)),
			mcpgo.WithString("your_job_id", mcpgo.Required(), mcpgo.Description("The job id of the calling agent, which will wait for this job.")),
		),
		a.handleStartAndWait,
	)
}

func (a *Agent) handleStart(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var args startArgs
	if err := mapstructure.Decode(req.GetArguments(), &args); err != nil {
		return mcp.TextResult(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	jobID, err := a.jobs.Submit(a, args.Inputs, a.cfg.StrategyName, nil)
	if err != nil {
		return mcp.TextResult(fmt.Sprintf("Failed to start job: %v", err)), nil
	}
	return mcp.TextResult(fmt.Sprintf("Agent is running. Job started: %s", jobID)), nil
}

// handleStartAndWait submits a child job and suspends the caller's job until
// the child is done: the caller gains a dependency, flips to in_queue and
// goes back on the queue for a worker to pick up once the child finishes.
func (a *Agent) handleStartAndWait(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var args startAndWaitArgs
	if err := mapstructure.Decode(req.GetArguments(), &args); err != nil {
		return mcp.TextResult(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	childID, err := a.jobs.Submit(a, args.AgentInputs, a.cfg.StrategyName, nil)
	if err != nil {
		return mcp.TextResult(fmt.Sprintf("Failed to start job: %v", err)), nil
	}

	err = a.jobs.Store().Update(args.YourJobID, func(waiter *job.Job) error {
		waiter.DependsOn = append(waiter.DependsOn, childID)
		waiter.ChatHistory = append(waiter.ChatHistory,
			protocol.SystemNote(fmt.Sprintf("Job %s has been started.", childID)))
		waiter.Status = job.StatusInQueue
		return nil
	})
	if err != nil {
		return mcp.TextResult(fmt.Sprintf("Job %s not found. You must provide your own job id to wait for another job.", args.YourJobID)), nil
	}

	if err := a.jobs.Queue().Put(args.YourJobID); err != nil {
		return mcp.TextResult(fmt.Sprintf("Failed to requeue job %s: %v", args.YourJobID, err)), nil
	}

	slog.Info("Job suspended to wait for child",
		"waiter", args.YourJobID, "child", childID, "agent", a.cfg.Name)
	return mcp.TextResult(fmt.Sprintf("Job %s has been started. To wait for it's completion return your plan.", childID)), nil
}

// Definitions exposes the tools of every connected server to the model.
func (a *Agent) Definitions() []runner.ToolDefinition {
	var defs []runner.ToolDefinition
	for _, client := range a.clients {
		for _, tool := range client.Tools() {
			defs = append(defs, runner.ToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaToMap(tool.InputSchema),
			})
		}
	}
	return defs
}

// Execute routes a tool call to the server that advertised it.
func (a *Agent) Execute(ctx context.Context, call protocol.ToolCall) string {
	for _, client := range a.clients {
		for _, tool := range client.Tools() {
			if tool.Name == call.Name {
				return client.Call(ctx, call.Name, call.Args)
			}
		}
	}
	return fmt.Sprintf("Tool %s not found.", call.Name)
}

func schemaToMap(s mcpgo.ToolInputSchema) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

var (
	_ job.Agent           = (*Agent)(nil)
	_ runner.ToolExecutor = (*Agent)(nil)
)
