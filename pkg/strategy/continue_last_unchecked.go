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
	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

// The original message text, preserved verbatim (including the spelling).
const msgContinueUnchecked = "Continue with the first step of the plan that is not checked yet. And after verifing the step goal mark it as checked."

// ContinueLastUnchecked keeps the conversation going as long as the plan has
// unchecked steps, and marks the job done once every step is checked.
type ContinueLastUnchecked struct {
	jobs JobGetter
}

func NewContinueLastUnchecked(jobs JobGetter) Strategy {
	return &ContinueLastUnchecked{jobs: jobs}
}

func (s *ContinueLastUnchecked) StartInstruction() string {
	return startInstruction
}

func (s *ContinueLastUnchecked) NextTurn(finalOutput *schema.Output, _ []protocol.Message, _ string, jobID string) Decision {
	if suspended(s.jobs, jobID) {
		return Decision{}
	}

	var plan []schema.Step
	if finalOutput != nil {
		plan = finalOutput.Plan
	}

	switch {
	case len(plan) == 0:
		return Decision{NextMessage: msgEmptyPlan}
	case allChecked(plan):
		return Decision{End: true}
	default:
		return Decision{NextMessage: msgContinueUnchecked}
	}
}
