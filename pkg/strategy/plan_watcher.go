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

package strategy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

const msgContinueWatched = "Continue with the first step of the plan that is not checked yet. And after verifying the step goal mark it as checked."

// PlanWatcher remembers the plan between turns and calls out steps that
// disappear before being checked, on top of the usual completion check.
type PlanWatcher struct {
	jobs     JobGetter
	planDict map[string]schema.Step
}

func NewPlanWatcher(jobs JobGetter) Strategy {
	return &PlanWatcher{
		jobs:     jobs,
		planDict: make(map[string]schema.Step),
	}
}

func (s *PlanWatcher) StartInstruction() string {
	return startInstruction
}

func (s *PlanWatcher) NextTurn(finalOutput *schema.Output, _ []protocol.Message, _ string, jobID string) Decision {
	if suspended(s.jobs, jobID) {
		return Decision{}
	}

	var plan []schema.Step
	if finalOutput != nil {
		plan = finalOutput.Plan
	}

	newDict := make(map[string]schema.Step, len(plan))
	for i, step := range plan {
		name := step.StepName
		if name == "" {
			name = strconv.Itoa(i)
		}
		newDict[name] = step
	}

	var removed []string
	for name, old := range s.planDict {
		if _, still := newDict[name]; !still && !old.Checked {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	var messages []string
	for _, name := range removed {
		messages = append(messages, fmt.Sprintf("The step: %s was unexpectedly removed from your plan, please review it and add it again properly.", name))
	}

	s.planDict = newDict

	switch {
	case len(plan) == 0:
		messages = append(messages, msgEmptyPlan)
		return Decision{NextMessage: strings.Join(messages, " ")}
	case allChecked(plan):
		return Decision{End: true}
	default:
		if len(messages) == 0 {
			messages = append(messages, msgContinueWatched)
		}
		return Decision{NextMessage: strings.Join(messages, " ")}
	}
}
