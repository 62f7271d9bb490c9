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
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Get and Put after Close.
var ErrQueueClosed = errors.New("job queue closed")

// Queue is an unbounded FIFO of job ids with drain accounting in the manner
// of a task queue: every Put must eventually be balanced by a TaskDone, and
// Join blocks until that balance is reached.
//
// Multiple producers (capability tools, HTTP triggers) and multiple
// consumers (workers) share one queue.
type Queue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      []string
	unfinished int
	closed     bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a job id. Insertion order is dequeue order.
func (q *Queue) Put(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, id)
	q.unfinished++
	q.cond.Broadcast()
	return nil
}

// Get blocks until a job id is available or the queue is closed.
func (q *Queue) Get() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", ErrQueueClosed
	}
	id := q.items[0]
	q.items = q.items[1:]
	return id, nil
}

// TaskDone marks one previously dequeued job as fully processed.
func (q *Queue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished <= 0 {
		panic("job.Queue: TaskDone called more times than Put")
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.cond.Broadcast()
	}
}

// Join blocks until every enqueued job has been balanced by a TaskDone.
func (q *Queue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.unfinished > 0 {
		q.cond.Wait()
	}
}

// Close wakes all blocked consumers; subsequent Put and Get fail with
// ErrQueueClosed. Used for worker shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued (not yet dequeued) job ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
