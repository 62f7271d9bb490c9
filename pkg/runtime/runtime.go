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

// Package runtime assembles the whole system from an agents directory:
// configuration discovery, agent loading in dependency order, the job
// service, the worker pool, and the outer servers.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneprompt/oneprompt/pkg/agent"
	"github.com/oneprompt/oneprompt/pkg/config"
	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/runner"
	"github.com/oneprompt/oneprompt/pkg/schema"
	"github.com/oneprompt/oneprompt/pkg/server"
	"github.com/oneprompt/oneprompt/pkg/strategy"
	"github.com/oneprompt/oneprompt/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

// Options configure a Runtime. Zero values fall back to the defaults the
// environment provides.
type Options struct {
	AgentsDir   string
	ServersFile string
	HTTPPort    int
	MainMCPPort int

	// PoolOptions tune the worker pool (worker count, max turns, backoff).
	PoolOptions []worker.Option

	// Runner overrides the LLM runner; nil means OpenAI from the environment.
	Runner runner.AgentRunner
}

// Runtime owns every long-lived component of one process.
type Runtime struct {
	agents *agent.Registry
	jobs   *job.Service
	order  []string

	pool    *worker.Pool
	httpSrv *server.HTTPServer
	mainMCP *server.MainMCP

	serverErrs []<-chan error
}

// New discovers and loads all agents, then wires the pool and servers.
// Nothing is listening yet; call Run or Start.
func New(opts Options) (*Runtime, error) {
	if opts.AgentsDir == "" {
		opts.AgentsDir = "agents"
	}
	if opts.ServersFile == "" {
		opts.ServersFile = "mcp_servers.yaml"
	}
	if opts.HTTPPort == 0 {
		opts.HTTPPort = config.HTTPPort()
	}
	if opts.MainMCPPort == 0 {
		opts.MainMCPPort = config.MainMCPPort()
	}

	configs, err := config.Discover(opts.AgentsDir)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("no agents found in %s", opts.AgentsDir)
	}

	order, err := agent.TopoSort(configs)
	if err != nil {
		return nil, err
	}

	external, err := config.LoadExternalServers(opts.ServersFile)
	if err != nil {
		return nil, err
	}

	jobs := job.NewService(job.NewStore(), job.NewQueue())

	agents, err := agent.Load(configs, order, external, schema.NewDefaultRegistry(), jobs)
	if err != nil {
		return nil, err
	}

	llm := opts.Runner
	if llm == nil {
		llm = runner.NewOpenAIRunner(os.Getenv(config.EnvBaseURL), os.Getenv(config.EnvAPIKey))
	}

	r := &Runtime{
		agents:  agents,
		jobs:    jobs,
		order:   order,
		pool:    worker.NewPool(jobs, strategy.NewDefaultRegistry(), llm, opts.PoolOptions...),
		httpSrv: server.NewHTTPServer(opts.HTTPPort, agents, jobs),
		mainMCP: server.NewMainMCP(opts.MainMCPPort, agents, jobs),
	}

	slog.Info("Runtime assembled",
		"agents", len(order), "load_order", order,
		"external_servers", len(external),
		"http_port", opts.HTTPPort, "main_mcp_port", opts.MainMCPPort)
	return r, nil
}

func (r *Runtime) Agents() *agent.Registry { return r.agents }

func (r *Runtime) Jobs() *job.Service { return r.jobs }

// Start brings every server up in dependency order and launches the pool.
func (r *Runtime) Start(ctx context.Context) {
	for _, name := range r.order {
		a, _ := r.agents.Get(name)
		r.serverErrs = append(r.serverErrs, a.StartServer())
		slog.Info("Agent capability server started", "agent", name, "url", a.ServerURL())
	}
	r.serverErrs = append(r.serverErrs, r.mainMCP.Start())
	r.serverErrs = append(r.serverErrs, r.httpSrv.Start())

	r.pool.Start(ctx)
}

// Run starts everything and blocks until the context is cancelled or any
// server dies, then shuts the runtime down.
func (r *Runtime) Run(ctx context.Context) error {
	r.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, errCh := range r.serverErrs {
		errCh := errCh
		g.Go(func() error {
			select {
			case err := <-errCh:
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := r.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Submit fires a job for the named agent with its configured strategy.
func (r *Runtime) Submit(agentName, prompt string) (string, error) {
	a, ok := r.agents.Get(agentName)
	if !ok {
		return "", fmt.Errorf("unknown agent %s", agentName)
	}
	return r.jobs.Submit(a, prompt, a.StrategyName(), nil)
}

// WaitIdle blocks until every submitted job has been fully processed.
func (r *Runtime) WaitIdle() {
	r.jobs.Queue().Join()
}

// Shutdown stops the pool first so no worker touches an agent mid-teardown,
// then the outer servers, then the agents in reverse load order.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.pool.Stop()

	var firstErr error
	if err := r.httpSrv.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := r.mainMCP.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	for i := len(r.order) - 1; i >= 0; i-- {
		a, _ := r.agents.Get(r.order[i])
		if err := a.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	slog.Info("Runtime stopped")
	return firstErr
}
