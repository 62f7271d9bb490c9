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

// Package worker runs the pool that drains the job queue and drives each
// job's autonomous chat until its strategy declares it finished.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/metrics"
	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/runner"
	"github.com/oneprompt/oneprompt/pkg/schema"
	"github.com/oneprompt/oneprompt/pkg/strategy"
)

const (
	DefaultWorkers  = 4
	DefaultMaxTurns = 30

	// How long a job with unmet dependencies stays off the queue before the
	// detached requeue puts it back.
	DefaultDependencyBackoff = 300 * time.Second
)

// ChatAgent is what the chat loop needs from an agent beyond the minimal
// job.Agent surface.
type ChatAgent interface {
	job.Agent
	runner.ToolExecutor

	SystemPrompt() string
	Schema() *schema.Definition
	Model() string
	ConnectTools(ctx context.Context) error
}

// Pool is a fixed-size worker pool over the shared job queue.
type Pool struct {
	jobs       *job.Service
	strategies *strategy.Registry
	runner     runner.AgentRunner

	workers  int
	maxTurns int
	backoff  time.Duration

	wg sync.WaitGroup
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

func WithMaxTurns(n int) Option {
	return func(p *Pool) { p.maxTurns = n }
}

func WithDependencyBackoff(d time.Duration) Option {
	return func(p *Pool) { p.backoff = d }
}

func NewPool(jobs *job.Service, strategies *strategy.Registry, agentRunner runner.AgentRunner, opts ...Option) *Pool {
	p := &Pool{
		jobs:       jobs,
		strategies: strategies,
		runner:     agentRunner,
		workers:    DefaultWorkers,
		maxTurns:   DefaultMaxTurns,
		backoff:    DefaultDependencyBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. They exit when the queue is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("Worker pool started", "workers", p.workers)
}

// Stop closes the queue and waits for workers to finish their current jobs.
func (p *Pool) Stop() {
	p.jobs.Queue().Close()
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := slog.With("worker", id)

	for {
		jobID, err := p.jobs.Queue().Get()
		if err != nil {
			log.Debug("Worker exiting, queue closed")
			return
		}
		metrics.QueueDepth.Set(float64(p.jobs.Queue().Len()))

		p.process(ctx, log, jobID)
		p.jobs.Queue().TaskDone()
	}
}

// process runs one dequeued job to whatever end it reaches this time:
// finished, suspended waiting for children, or out of turns.
func (p *Pool) process(ctx context.Context, log *slog.Logger, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panic while processing job",
				"job_id", jobID, "panic", r, "stack", string(debug.Stack()))
			p.markError(jobID)
		}
	}()

	snap, ok := p.jobs.Get(jobID)
	if !ok {
		log.Error("Dequeued unknown job", "job_id", jobID)
		return
	}

	if unmet := p.jobs.Unmet(&snap); len(unmet) > 0 {
		log.Info("Job has unmet dependencies, delaying requeue",
			"job_id", jobID, "unmet", unmet, "backoff", p.backoff)
		metrics.JobsRequeued.Inc()
		queue := p.jobs.Queue()
		time.AfterFunc(p.backoff, func() {
			if err := queue.Put(jobID); err != nil {
				slog.Warn("Delayed requeue dropped, queue closed", "job_id", jobID)
			}
		})
		return
	}

	if err := p.jobs.Store().Mark(jobID, job.StatusInProgress); err != nil {
		log.Warn("Skipping job, cannot transition to in_progress", "job_id", jobID, "error", err)
		return
	}

	chatAgent, ok := snap.Agent.(ChatAgent)
	if !ok {
		log.Error("Job's agent cannot chat", "job_id", jobID, "agent", snap.Agent.Name())
		p.markError(jobID)
		return
	}

	strat := p.strategies.Resolve(snap.StrategyName, p.jobs.Get)

	if err := p.chat(ctx, log, jobID, chatAgent, strat); err != nil {
		log.Error("Job failed", "job_id", jobID, "agent", chatAgent.Name(), "error", err)
		p.markError(jobID)
		return
	}

	status, _ := p.jobs.Store().Status(jobID)
	switch status {
	case job.StatusDone:
		log.Info("Job finished", "job_id", jobID, "agent", chatAgent.Name())
		metrics.JobsCompleted.WithLabelValues(string(job.StatusDone)).Inc()
	case job.StatusInQueue:
		log.Info("Job suspended, waiting for dependencies", "job_id", jobID)
	default:
		log.Warn("Job ran out of turns, leaving in progress", "job_id", jobID, "max_turns", p.maxTurns)
	}
}

func (p *Pool) markError(jobID string) {
	if err := p.jobs.Store().Mark(jobID, job.StatusError); err != nil {
		slog.Warn("Could not mark job as errored", "job_id", jobID, "error", err)
		return
	}
	metrics.JobsCompleted.WithLabelValues(string(job.StatusError)).Inc()
}

// chat is the autonomous loop: model turn, persist transcript, consult the
// strategy, repeat. A runner error does not kill the job; it is framed as a
// user message for the next turn.
func (p *Pool) chat(ctx context.Context, log *slog.Logger, jobID string, a ChatAgent, strat strategy.Strategy) error {
	if err := a.ConnectTools(ctx); err != nil {
		return err
	}

	snap, ok := p.jobs.Get(jobID)
	if !ok {
		return fmt.Errorf("job %s disappeared", jobID)
	}

	var history []protocol.Message
	var currentMsg string
	if len(snap.ChatHistory) == 0 {
		currentMsg = fmt.Sprintf("Your JOB_ID is %s. %s %s", jobID, snap.InitialText, strat.StartInstruction())
	} else {
		history = protocol.CloneHistory(snap.ChatHistory)
		currentMsg = "Jobs waited have ended. Resume your task."
	}

	for turn := 1; turn <= p.maxTurns; turn++ {
		log.Debug("Chat turn", "job_id", jobID, "turn", turn, "max_turns", p.maxTurns)

		input := append(protocol.CloneHistory(history), protocol.User(currentMsg))
		result, err := p.runner.Run(ctx, runner.Params{
			AgentName:    a.Name(),
			SystemPrompt: a.SystemPrompt(),
			Input:        input,
			Model:        a.Model(),
			Schema:       a.Schema(),
			Tools:        a,
			Hooks:        p.hooks(),
		})
		if err != nil {
			log.Warn("Agent turn failed, feeding error back", "job_id", jobID, "turn", turn, "error", err)
			currentMsg = fmt.Sprintf("The last attempt failed with an error: %v; please recover and continue.", err)
			continue
		}

		history = result.Input
		if err := p.jobs.Store().SetHistory(jobID, history); err != nil {
			return err
		}
		if result.FinalOutput != nil && result.FinalOutput.Summary != "" {
			if err := p.jobs.Store().SetSummary(jobID, result.FinalOutput.Summary); err != nil {
				return err
			}
		}

		decision := strat.NextTurn(result.FinalOutput, history, a.Name(), jobID)
		switch {
		case decision.End:
			return p.jobs.Store().Mark(jobID, job.StatusDone)
		case decision.NextMessage == "":
			// Suspended from outside (e.g. _start_and_wait flipped it to
			// in_queue); leave the status alone.
			return nil
		default:
			currentMsg = decision.NextMessage
		}
	}

	return nil
}

func (p *Pool) hooks() runner.Hooks {
	return runner.Hooks{
		OnToolStart: func(agentName, toolName string, args map[string]any) {
			slog.Info("Tool started", "agent", agentName, "tool", toolName)
		},
		OnGenerationEnd: func(agentName string, output *schema.Output) {
			if output != nil {
				slog.Debug("Generation finished", "agent", agentName, "plan_steps", len(output.Plan))
			}
		},
	}
}
