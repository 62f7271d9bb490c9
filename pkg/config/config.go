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

// Package config holds the declarative agent configuration and its discovery
// from an agents directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStrategyName is used when an agent config omits strategy_name.
const DefaultStrategyName = "default"

// AgentConfig is the declarative record for one agent, loaded from the
// config.json inside its folder. Unknown keys are tolerated and ignored.
type AgentConfig struct {
	Name              string   `json:"name"`
	PromptFile        string   `json:"prompt_file"`
	ReturnType        string   `json:"return_type"`
	InputsDescription string   `json:"inputs_description"`
	Tools             []string `json:"tools"`
	Model             string   `json:"model,omitempty"`
	StrategyName      string   `json:"strategy_name,omitempty"`

	// Folder is the resolved agent folder path, attached during discovery.
	Folder string `json:"-"`
}

// Validate checks the required fields.
func (c *AgentConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("missing required field 'name'")
	}
	if c.PromptFile == "" {
		return fmt.Errorf("agent %s: missing required field 'prompt_file'", c.Name)
	}
	if c.ReturnType == "" {
		return fmt.Errorf("agent %s: missing required field 'return_type'", c.Name)
	}
	if c.Tools == nil {
		c.Tools = []string{}
	}
	if c.StrategyName == "" {
		c.StrategyName = DefaultStrategyName
	}
	return nil
}

// PromptPath returns the absolute path of the agent's instructions file.
func (c *AgentConfig) PromptPath() string {
	return filepath.Join(c.Folder, c.PromptFile)
}

// Discover reads every subfolder of root that contains a config.json and
// returns the configs keyed by agent name. A malformed or incomplete config
// is a fatal configuration error.
func Discover(root string) (map[string]*AgentConfig, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading agents directory %s: %w", root, err)
	}

	configs := make(map[string]*AgentConfig)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder := filepath.Join(root, entry.Name())
		cfgPath := filepath.Join(folder, "config.json")
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", cfgPath, err)
		}

		cfg := &AgentConfig{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", cfgPath, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", cfgPath, err)
		}
		cfg.Folder = folder

		if _, exists := configs[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate agent name '%s' in %s", cfg.Name, folder)
		}
		configs[cfg.Name] = cfg
	}
	return configs, nil
}
