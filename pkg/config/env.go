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
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvMainMCPPort = "MAIN_MCP_PORT"
	EnvHTTPPort    = "ONEPROMPT_HTTP_PORT"
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvBaseURL     = "OPENAI_BASE_URL"
)

// Defaults.
const (
	DefaultMainMCPPort = 22222
	DefaultHTTPPort    = 9000
	DefaultModel       = "o4-mini"
)

// LoadEnv loads a .env file from the working directory if present. A missing
// file is not an error; a malformed one is only logged.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("No .env file loaded", "error", err)
		}
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "var", name, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// MainMCPPort returns the port of the process-wide capability server.
func MainMCPPort() int {
	return envInt(EnvMainMCPPort, DefaultMainMCPPort)
}

// HTTPPort returns the admin HTTP port.
func HTTPPort() int {
	return envInt(EnvHTTPPort, DefaultHTTPPort)
}
