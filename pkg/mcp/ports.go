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

package mcp

import "sync/atomic"

// Agent servers take sequential ports; the first agent gets 8001.
const agentPortBase = 8000

var portCounter atomic.Int32

func init() {
	portCounter.Store(agentPortBase)
}

// NextAgentPort reserves the next agent server port.
func NextAgentPort() int {
	return int(portCounter.Add(1))
}

// ResetAgentPorts restores the counter. Test hook.
func ResetAgentPorts() {
	portCounter.Store(agentPortBase)
}
