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

// Package protocol defines the role-tagged conversation transcript shared by
// the job store, the workers, and the agent runner.
package protocol

// Role tags a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	// RoleSystem marks scheduler-authored notes injected into a transcript
	// (e.g. "Job X has been started."). Strategies must tolerate such entries.
	RoleSystem Role = "system"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// Message is one transcript entry. Content is opaque to the scheduler; tool
// call entries carry ToolCalls (assistant side) or ToolCallID (result side).
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemNote builds a scheduler-authored note.
func SystemNote(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// CloneHistory returns a shallow copy of a transcript so that appends on the
// copy never rewrite entries observed through the job store.
func CloneHistory(history []Message) []Message {
	if history == nil {
		return nil
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
