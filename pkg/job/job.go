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

// Package job is the single source of truth for job state: an in-memory
// store keyed by job id plus a FIFO queue feeding the worker pool.
package job

import (
	"fmt"
	"time"

	"github.com/oneprompt/oneprompt/pkg/protocol"
)

// Status of a job. Transitions are monotonic except for the requeue path
// in_progress -> in_queue used by a job waiting on its children.
type Status string

const (
	StatusInDraft    Status = "in_draft"
	StatusInQueue    Status = "in_queue"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

var allowedTransitions = map[Status][]Status{
	StatusInDraft:    {StatusInQueue},
	StatusInQueue:    {StatusInProgress},
	StatusInProgress: {StatusDone, StatusError, StatusInQueue},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Agent is the subset of the runtime agent the job layer needs. The worker
// pool narrows it further to drive the autonomous-chat loop.
type Agent interface {
	Name() string
	StrategyName() string
}

// Job is one execution of one agent against one initial prompt. Jobs are
// owned by the Store; everything outside the store holds only the id and
// reads snapshots.
type Job struct {
	ID           string
	Agent        Agent
	InitialText  string
	StrategyName string
	DependsOn    []string
	Status       Status
	ChatHistory  []protocol.Message
	Summary      string
	CreatedAt    time.Time
}

// clone returns a snapshot safe to hand out without the store lock.
func (j *Job) clone() Job {
	out := *j
	out.DependsOn = append([]string(nil), j.DependsOn...)
	out.ChatHistory = protocol.CloneHistory(j.ChatHistory)
	return out
}

// TransitionError is returned by Mark for an illegal status change.
type TransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: illegal status transition %s -> %s", e.JobID, e.From, e.To)
}
