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

package job

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oneprompt/oneprompt/pkg/metrics"
)

// Service bundles the store and the queue behind the submit/get/mark surface
// used by the capability tools, the HTTP triggers, and the worker pool.
type Service struct {
	store *Store
	queue *Queue
}

func NewService(store *Store, queue *Queue) *Service {
	return &Service{store: store, queue: queue}
}

func (s *Service) Store() *Store { return s.store }
func (s *Service) Queue() *Queue { return s.queue }

// newJobID returns a short unique id (the first uuid group).
func newJobID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Submit creates a job in the store and enqueues it. The job is visible in
// the store strictly before its id hits the queue.
func (s *Service) Submit(agent Agent, text, strategyName string, dependsOn []string) (string, error) {
	j := &Job{
		ID:           newJobID(),
		Agent:        agent,
		InitialText:  text,
		StrategyName: strategyName,
		DependsOn:    append([]string(nil), dependsOn...),
		Status:       StatusInQueue,
		CreatedAt:    time.Now(),
	}
	if err := s.store.Insert(j); err != nil {
		return "", err
	}
	if err := s.queue.Put(j.ID); err != nil {
		return "", err
	}

	metrics.JobsSubmitted.Inc()
	metrics.QueueDepth.Set(float64(s.queue.Len()))

	slog.Info("Job submitted", "job_id", j.ID, "agent", agent.Name(), "strategy", strategyName, "depends_on", j.DependsOn)
	return j.ID, nil
}

// Get returns a snapshot of the job.
func (s *Service) Get(id string) (Job, bool) {
	return s.store.Get(id)
}

// Unmet returns the job's dependencies that are not done yet.
func (s *Service) Unmet(j *Job) []string {
	if len(j.DependsOn) == 0 {
		return nil
	}
	done := s.store.DoneJobs()
	var unmet []string
	for _, dep := range j.DependsOn {
		if _, ok := done[dep]; !ok {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
