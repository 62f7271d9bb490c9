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
	"fmt"
	"sync"

	"github.com/oneprompt/oneprompt/pkg/protocol"
)

// Sentinel errors for store operations.
var (
	ErrJobNotFound = fmt.Errorf("job not found")
)

// Store is the in-memory job map. A single mutex guards the map and every
// per-job field; entries are never deleted, so dependents can always resolve
// the ids in their depends_on sets.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Insert adds a new job. The job must be in the store before its id is ever
// placed on the queue.
func (s *Store) Insert(j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return fmt.Errorf("job %s already exists", j.ID)
	}
	s.jobs[j.ID] = j
	return nil
}

// Get returns a snapshot of the job, or false if the id is unknown.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// Status returns the job's current status.
func (s *Store) Status(id string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return "", false
	}
	return j.Status, true
}

// Mark transitions the job to the given status, enforcing the allowed
// transitions.
func (s *Store) Mark(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !CanTransition(j.Status, status) {
		return &TransitionError{JobID: id, From: j.Status, To: status}
	}
	j.Status = status
	return nil
}

// Update runs fn on the live job under the store lock. This is the atomic
// read-modify-write used by _start_and_wait to attach a dependency, note the
// child in the transcript, and flip the caller back to in_queue in one step.
func (s *Store) Update(id string, fn func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fn(j)
}

// SetHistory replaces the job's transcript snapshot.
func (s *Store) SetHistory(id string, history []protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.ChatHistory = history
	return nil
}

// SetSummary records the summary extracted from the last final output.
func (s *Store) SetSummary(id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.Summary = summary
	return nil
}

// DoneJobs returns the set of ids whose status is done. The result reflects
// every Mark call that happened before under the store lock.
func (s *Store) DoneJobs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(map[string]struct{})
	for id, j := range s.jobs {
		if j.Status == StatusDone {
			done[id] = struct{}{}
		}
	}
	return done
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
