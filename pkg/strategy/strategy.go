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

// Package strategy decides, after every model turn, whether a job is
// finished or what corrective message to feed into the next turn.
//
// Strategies are registered process-wide by name; each job gets a fresh
// instance so a strategy may carry per-job memory across turns.
package strategy

import (
	"log/slog"

	"github.com/oneprompt/oneprompt/pkg/job"
	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/registry"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

// DefaultName is the strategy used when a config names none, or names one
// that is not registered.
const DefaultName = "default"

// Shared literal messages. The strategies are part of the agent-facing
// protocol, so the texts are stable.
const (
	startInstruction = "Start by making a plan"

	msgEmptyPlan = "Plan shouldn't be empty. Revisit the conversation history and generate a new plan according to your goals."
)

// Decision is the outcome of one strategy consultation.
//
// End true with an empty NextMessage marks the job done. End false with an
// empty NextMessage tells the chat loop to stop without marking done (the
// job was suspended externally, e.g. flipped to in_queue by
// _start_and_wait). Otherwise NextMessage is the next user turn.
type Decision struct {
	End         bool
	NextMessage string
}

// JobGetter queries a fresh job snapshot. Strategies receive it instead of
// the store to stay decoupled from job-state plumbing.
type JobGetter func(jobID string) (job.Job, bool)

// Strategy inspects each turn's structured output.
type Strategy interface {
	// StartInstruction is appended to the first user message of a job.
	StartInstruction() string

	// NextTurn decides whether the chat ends and what to say next.
	NextTurn(finalOutput *schema.Output, history []protocol.Message, agentName, jobID string) Decision
}

// Factory produces a per-job strategy instance.
type Factory func(jobs JobGetter) Strategy

// Registry is the process-wide strategy map.
type Registry struct {
	*registry.BaseRegistry[Factory]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Factory]()}
}

// NewDefaultRegistry returns a registry with the built-in strategies:
// "default" (continue-last-unchecked) and "plan_watcher".
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.Register(DefaultName, NewContinueLastUnchecked); err != nil {
		panic(err)
	}
	if err := r.Register("plan_watcher", NewPlanWatcher); err != nil {
		panic(err)
	}
	return r
}

// Resolve instantiates the named strategy for one job. An unknown name logs
// a warning and falls back to the default strategy.
func (r *Registry) Resolve(name string, jobs JobGetter) Strategy {
	factory, ok := r.Get(name)
	if !ok {
		slog.Warn("Unknown chat strategy, falling back to default", "strategy", name)
		factory, _ = r.Get(DefaultName)
	}
	return factory(jobs)
}

// suspended reports whether the job left in_progress under our feet; if so
// the chat loop must stop without touching the status.
func suspended(jobs JobGetter, jobID string) bool {
	j, ok := jobs(jobID)
	if !ok || j.Status != job.StatusInProgress {
		status := "not found"
		if ok {
			status = string(j.Status)
		}
		slog.Info("Job no longer in progress, signaling chat loop to end", "job_id", jobID, "status", status)
		return true
	}
	return false
}

// allChecked reports whether every plan step is checked.
func allChecked(plan []schema.Step) bool {
	for _, step := range plan {
		if !step.Checked {
			return false
		}
	}
	return true
}
