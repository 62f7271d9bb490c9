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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExternalServerConfig declares one external capability server that agents
// may reference by name in their tools list.
type ExternalServerConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url,omitempty"`
	Transport string            `yaml:"transport,omitempty"` // sse (default) or streamable-http
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// ExternalServersFile is the on-disk shape of mcp_servers.yaml.
type ExternalServersFile struct {
	Servers []ExternalServerConfig `yaml:"servers"`
}

// LoadExternalServers reads the external capability-server registry file.
// A missing file yields an empty list.
func LoadExternalServers(path string) ([]ExternalServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file ExternalServersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Servers))
	for i := range file.Servers {
		srv := &file.Servers[i]
		if srv.Name == "" {
			return nil, fmt.Errorf("%s: server entry %d has no name", path, i)
		}
		if srv.URL == "" {
			return nil, fmt.Errorf("%s: server %s has no url", path, srv.Name)
		}
		if srv.Transport == "" {
			srv.Transport = "sse"
		}
		if seen[srv.Name] {
			return nil, fmt.Errorf("%s: duplicate server name '%s'", path, srv.Name)
		}
		seen[srv.Name] = true
	}
	return file.Servers, nil
}
