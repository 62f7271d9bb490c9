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

package agent

import (
	"fmt"
	"os"
	"sort"

	"github.com/oneprompt/oneprompt/pkg/config"
	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/mcp"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

// CycleError reports a cyclic agent-typed tool reference found during sort.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency at %s", e.Node)
}

// TopoSort orders agents so that every agent comes after the agents it uses
// as tools. Tool names that are not agents (external servers) don't take
// part in the ordering. A dependency cycle is a configuration error.
func TopoSort(configs map[string]*config.AgentConfig) ([]string, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	// dep -> agents depending on it
	dependents := make(map[string][]string)
	for _, name := range names {
		for _, dep := range configs[name].Tools {
			if _, isAgent := configs[dep]; isAgent {
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(configs))
	var order []string

	var visit func(node string) error
	visit = func(node string) error {
		switch color[node] {
		case gray:
			return &CycleError{Node: node}
		case black:
			return nil
		}
		color[node] = gray
		for _, dependent := range dependents[node] {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		color[node] = black
		order = append(order, node)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	// Dependents were appended first; reverse for dependencies-first order.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// Load builds every agent in load order. Tool names resolve to already
// loaded agents first; an agent and an external server sharing a name
// resolve to the agent.
func Load(
	configs map[string]*config.AgentConfig,
	order []string,
	external []config.ExternalServerConfig,
	schemas *schema.Registry,
	jobs *job.Service,
) (*Registry, error) {
	externalByName := make(map[string]config.ExternalServerConfig, len(external))
	for _, srv := range external {
		externalByName[srv.Name] = srv
	}

	loaded := NewRegistry()
	for _, name := range order {
		cfg := configs[name]

		prompt, err := os.ReadFile(cfg.PromptPath())
		if err != nil {
			return nil, fmt.Errorf("reading prompt for agent %s: %w", name, err)
		}

		schemaDef, err := schemas.Resolve(cfg.Folder, cfg.ReturnType)
		if err != nil {
			return nil, fmt.Errorf("resolving return type for agent %s: %w", name, err)
		}

		var clients []*mcp.Client
		for _, toolName := range cfg.Tools {
			if dep, ok := loaded.Get(toolName); ok {
				clients = append(clients, mcp.NewClient(toolName, dep.ServerURL()))
				continue
			}
			if srv, ok := externalByName[toolName]; ok {
				clients = append(clients, mcp.NewClient(toolName, srv.URL,
					mcp.WithTransport(srv.Transport),
					mcp.WithHeaders(srv.Headers)))
				continue
			}
			return nil, fmt.Errorf("tool '%s' not found for agent '%s'", toolName, name)
		}

		a := New(cfg, string(prompt), schemaDef, clients, jobs)
		if err := loaded.Register(name, a); err != nil {
			return nil, err
		}
	}
	return loaded, nil
}
