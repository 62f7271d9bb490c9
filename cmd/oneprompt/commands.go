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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/oneprompt/oneprompt/pkg/config"
	"github.com/oneprompt/oneprompt/pkg/httpclient"
	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/runtime"
)

const version = "0.2.0"

// ServeCmd runs the full runtime until interrupted.
type ServeCmd struct {
	HTTPPort int `name:"http-port" help:"Admin HTTP port (default from ONEPROMPT_HTTP_PORT or 9000)."`
	MCPPort  int `name:"mcp-port" help:"Main MCP port (default from MAIN_MCP_PORT or 22222)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	rt, err := runtime.New(runtime.Options{
		AgentsDir:   cli.AgentsDir,
		ServersFile: cli.Servers,
		HTTPPort:    c.HTTPPort,
		MainMCPPort: c.MCPPort,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

// RunCmd runs one agent job in-process and exits once the queue drains.
type RunCmd struct {
	Agent  string   `arg:"" help:"Agent to run."`
	Prompt []string `arg:"" help:"Prompt for the agent."`
}

func (c *RunCmd) Run(cli *CLI) error {
	rt, err := runtime.New(runtime.Options{
		AgentsDir:   cli.AgentsDir,
		ServersFile: cli.Servers,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = rt.Shutdown(shutdownCtx)
	}()

	id, err := rt.Submit(c.Agent, strings.Join(c.Prompt, " "))
	if err != nil {
		return err
	}
	rt.WaitIdle()

	snap, ok := rt.Jobs().Get(id)
	if !ok {
		return fmt.Errorf("job %s disappeared", id)
	}
	fmt.Printf("%s: %s\n", snap.ID, snap.Status)
	if snap.Summary != "" {
		fmt.Println(snap.Summary)
	}
	if snap.Status == job.StatusError {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}

// TriggerCmd fires an agent over HTTP on a server that is already running.
type TriggerCmd struct {
	Agent  string   `arg:"" help:"Agent to trigger."`
	Prompt []string `arg:"" help:"Prompt for the agent."`

	Host          string        `help:"Server host." default:"127.0.0.1"`
	Port          int           `help:"Server port (default from ONEPROMPT_HTTP_PORT or 9000)."`
	HealthRetries int           `name:"health-retries" help:"How many times to poll the health endpoint." default:"20"`
	HealthDelay   time.Duration `name:"health-delay" help:"Delay between health polls." default:"1s"`
}

func (c *TriggerCmd) Run(cli *CLI) error {
	port := c.Port
	if port == 0 {
		port = config.HTTPPort()
	}
	base := fmt.Sprintf("http://%s:%d", c.Host, port)
	client := httpclient.New(httpclient.WithRetryStrategy(func(int) httpclient.RetryStrategy { return httpclient.NoRetry }))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.waitHealthy(ctx, client, base); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"prompt": strings.Join(c.Prompt, " ")})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s/run", base, c.Agent), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("triggering agent %s: %w", c.Agent, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(payload)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server rejected the trigger with status %d", resp.StatusCode)
	}
	return nil
}

func (c *TriggerCmd) waitHealthy(ctx context.Context, client *httpclient.Client, base string) error {
	for attempt := 1; attempt <= c.HealthRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.HealthDelay):
		}
	}
	return fmt.Errorf("server at %s did not become healthy after %d attempts", base, c.HealthRetries)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	commit := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
				commit = setting.Value[:12]
			}
		}
	}
	fmt.Printf("oneprompt %s (%s)\n", version, commit)
	return nil
}
