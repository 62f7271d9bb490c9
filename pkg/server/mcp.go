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

package server

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"

	"github.com/oneprompt/oneprompt/pkg/agent"
	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/mcp"
)

// MainMCP is the process-global MCP server: job inspection and runtime agent
// administration, available to any MCP client.
type MainMCP struct {
	server *mcp.Server
	agents *agent.Registry
	jobs   *job.Service
}

func NewMainMCP(port int, agents *agent.Registry, jobs *job.Service) *MainMCP {
	m := &MainMCP{
		server: mcp.NewServer("one-prompt-agent-mcp", "0.2.0", port),
		agents: agents,
		jobs:   jobs,
	}
	m.registerTools()
	return m
}

func (m *MainMCP) Start() <-chan error { return m.server.Start() }

func (m *MainMCP) Shutdown(ctx context.Context) error { return m.server.Shutdown(ctx) }

func (m *MainMCP) registerTools() {
	m.server.AddTool(
		mcpgo.NewTool("get_job",
			mcpgo.WithDescription("Get the status and summary of a specific job by its ID."),
			mcpgo.WithString("job_id", mcpgo.Required(), mcpgo.Description("The ID of the job to retrieve.")),
		),
		m.handleGetJob,
	)
	m.server.AddTool(
		mcpgo.NewTool("get_job_details",
			mcpgo.WithDescription("Get all details of a specific job by its ID."),
			mcpgo.WithString("job_id", mcpgo.Required(), mcpgo.Description("The ID of the job to retrieve.")),
		),
		m.handleGetJobDetails,
	)
	m.server.AddTool(
		mcpgo.NewTool("change_agent_model",
			mcpgo.WithDescription("Changes the model of a specified agent at runtime."),
			mcpgo.WithString("agent_name", mcpgo.Required(), mcpgo.Description("The agent to change.")),
			mcpgo.WithString("new_model", mcpgo.Required(), mcpgo.Description("The model identifier to switch to.")),
		),
		m.handleChangeAgentModel,
	)
}

type jobIDArgs struct {
	JobID string `mapstructure:"job_id"`
}

func (m *MainMCP) handleGetJob(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var args jobIDArgs
	if err := mapstructure.Decode(req.GetArguments(), &args); err != nil {
		return mcp.TextResult(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	snap, ok := m.jobs.Get(args.JobID)
	if !ok {
		return mcp.TextResult(fmt.Sprintf("Job with ID '%s' not found.", args.JobID)), nil
	}
	if snap.Summary != "" {
		return mcp.TextResult(fmt.Sprintf("%s: %s. Summary: %s", snap.ID, snap.Status, snap.Summary)), nil
	}
	return mcp.TextResult(fmt.Sprintf("%s: %s", snap.ID, snap.Status)), nil
}

func (m *MainMCP) handleGetJobDetails(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var args jobIDArgs
	if err := mapstructure.Decode(req.GetArguments(), &args); err != nil {
		return mcp.TextResult(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	snap, ok := m.jobs.Get(args.JobID)
	if !ok {
		return mcp.TextResult(fmt.Sprintf("Job with ID '%s' not found.", args.JobID)), nil
	}

	record := map[string]any{
		"job_id":       snap.ID,
		"agent":        snap.Agent.Name(),
		"status":       snap.Status,
		"summary":      snap.Summary,
		"strategy":     snap.StrategyName,
		"depends_on":   snap.DependsOn,
		"created_at":   snap.CreatedAt,
		"chat_history": snap.ChatHistory,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return mcp.TextResult(fmt.Sprintf("Failed to render job %s: %v", args.JobID, err)), nil
	}
	return mcp.TextResult(string(data)), nil
}

type changeModelArgs struct {
	AgentName string `mapstructure:"agent_name"`
	NewModel  string `mapstructure:"new_model"`
}

func (m *MainMCP) handleChangeAgentModel(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	var args changeModelArgs
	if err := mapstructure.Decode(req.GetArguments(), &args); err != nil {
		return mcp.TextResult(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	a, ok := m.agents.Get(args.AgentName)
	if !ok {
		return mcp.TextResult(fmt.Sprintf("Agent %s not found. Available: %v", args.AgentName, m.agents.Names())), nil
	}
	if args.NewModel == "" {
		return mcp.TextResult("New model not provided."), nil
	}

	a.SetModel(args.NewModel)
	return mcp.TextResult(fmt.Sprintf("Model of agent %s changed to %s.", args.AgentName, args.NewModel)), nil
}
