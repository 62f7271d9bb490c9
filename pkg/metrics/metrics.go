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

// Package metrics exposes the runtime's Prometheus collectors, served on the
// admin HTTP /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneprompt_jobs_submitted_total",
		Help: "Jobs submitted to the queue.",
	})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneprompt_jobs_completed_total",
		Help: "Jobs that reached a terminal status, by status.",
	}, []string{"status"})

	JobsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneprompt_jobs_requeued_total",
		Help: "Jobs requeued because of unmet dependencies.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oneprompt_queue_depth",
		Help: "Jobs currently waiting in the queue.",
	})

	ChatTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneprompt_chat_turns_total",
		Help: "Model turns executed by the autonomous-chat loop.",
	})
)
