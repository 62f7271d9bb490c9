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

// Command oneprompt runs the multi-agent orchestration server and the small
// client commands that talk to it.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/oneprompt/oneprompt/pkg/config"
)

// CLI is the top-level command grammar.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the agent server and run until interrupted."`
	Run     RunCmd     `cmd:"" help:"Run one agent job locally and exit when all jobs settle."`
	Trigger TriggerCmd `cmd:"" help:"Fire an agent on an already running server."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	AgentsDir string `name:"agents-dir" help:"Directory containing agent folders." default:"agents" type:"path"`
	Servers   string `help:"External MCP servers file." default:"mcp_servers.yaml" type:"path"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:""`
}

func main() {
	config.LoadEnv()

	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("oneprompt"),
		kong.Description("One-prompt multi-agent orchestration."),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
