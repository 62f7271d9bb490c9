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

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oneprompt/oneprompt/pkg/httpclient"
	"github.com/oneprompt/oneprompt/pkg/metrics"
	"github.com/oneprompt/oneprompt/pkg/protocol"
	"github.com/oneprompt/oneprompt/pkg/schema"
)

// maxToolRounds bounds the model/tool loop within a single turn.
const maxToolRounds = 10

type openAIRequest struct {
	Model               string                `json:"model"`
	Messages            []openAIMessage       `json:"messages"`
	MaxCompletionTokens *int                  `json:"max_completion_tokens,omitempty"`
	MaxTokens           *int                  `json:"max_tokens,omitempty"`
	Temperature         *float64              `json:"temperature,omitempty"`
	Tools               []openAITool          `json:"tools,omitempty"`
	ToolChoice          string                `json:"tool_choice,omitempty"`
	ResponseFormat      *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// OpenAIRunner talks to any chat-completions compatible endpoint.
type OpenAIRunner struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.Client
}

func NewOpenAIRunner(baseURL, apiKey string) *OpenAIRunner {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIRunner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 300 * time.Second}),
			httpclient.WithMaxRetries(3),
		),
	}
}

// Run loops model calls and tool executions until the model answers with a
// final message, then parses it into the structured output.
func (r *OpenAIRunner) Run(ctx context.Context, params Params) (*Result, error) {
	messages := protocol.CloneHistory(params.Input)

	var toolDefs []ToolDefinition
	if params.Tools != nil {
		toolDefs = params.Tools.Definitions()
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := r.chatCompletion(ctx, params, messages, toolDefs)
		if err != nil {
			return nil, err
		}

		assistant := protocol.Message{
			Role:    protocol.RoleAssistant,
			Content: resp.Message.Content,
		}
		for _, tc := range resp.Message.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parsing tool arguments for %s: %w", tc.Function.Name, err)
			}
			assistant.ToolCalls = append(assistant.ToolCalls, protocol.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
		messages = append(messages, assistant)

		if len(assistant.ToolCalls) == 0 {
			output := schema.ParseOutput([]byte(assistant.Content))
			if params.Hooks.OnGenerationEnd != nil {
				params.Hooks.OnGenerationEnd(params.AgentName, output)
			}
			return &Result{FinalOutput: output, Input: messages}, nil
		}

		for _, call := range assistant.ToolCalls {
			if params.Hooks.OnToolStart != nil {
				params.Hooks.OnToolStart(params.AgentName, call.Name, call.Args)
			}
			payload := params.Tools.Execute(ctx, call)
			messages = append(messages, protocol.Message{
				Role:       protocol.RoleTool,
				Content:    payload,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("agent %s exceeded %d tool rounds in one turn", params.AgentName, maxToolRounds)
}

func (r *OpenAIRunner) chatCompletion(ctx context.Context, params Params, history []protocol.Message, toolDefs []ToolDefinition) (*openAIChoice, error) {
	request := r.buildRequest(params, history, toolDefs)

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	httpResp, err := r.httpClient.Do(req)
	if httpResp != nil {
		defer func() { _ = httpResp.Body.Close() }()
		if httpResp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(httpResp.Body)
			if apiErr := parseErrorResponse(body); apiErr != nil {
				return nil, fmt.Errorf("model API error (status %d): %s (type: %s, code: %s)",
					httpResp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
			}
			return nil, fmt.Errorf("model API error (status %d): %s", httpResp.StatusCode, string(body))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("model API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	metrics.ChatTurns.Inc()
	slog.Debug("Model call completed",
		"agent", params.AgentName, "model", params.Model,
		"finish_reason", response.Choices[0].FinishReason)

	return &response.Choices[0], nil
}

func (r *OpenAIRunner) buildRequest(params Params, history []protocol.Message, toolDefs []ToolDefinition) openAIRequest {
	messages := make([]openAIMessage, 0, len(history)+1)
	if params.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: params.SystemPrompt})
	}

	for _, msg := range history {
		m := openAIMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Args)
			m.ToolCalls = append(m.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: string(argsJSON),
				},
			})
		}
		messages = append(messages, m)
	}

	request := openAIRequest{
		Model:    params.Model,
		Messages: messages,
	}

	// Reasoning models pin temperature and refuse max_tokens.
	if !isReasoningModel(params.Model) {
		temperature := 0.7
		request.Temperature = &temperature
	}

	if params.Schema != nil {
		request.ResponseFormat = &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   params.Schema.Name,
				Schema: params.Schema.Schema,
				Strict: true,
			},
		}
	}

	if len(toolDefs) > 0 {
		request.Tools = make([]openAITool, len(toolDefs))
		for i, def := range toolDefs {
			request.Tools[i] = openAITool{
				Type:     "function",
				Function: openAIToolFunction(def),
			}
		}
		request.ToolChoice = "auto"
	}

	return request
}

func isReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	if lower == "o1" || lower == "o3" || lower == "o4" || lower == "gpt-5" {
		return true
	}
	for _, prefix := range []string{"o1-", "o3-", "o4-", "gpt-5-"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func parseErrorResponse(body []byte) *openAIError {
	if len(body) == 0 {
		return nil
	}
	var errorResp struct {
		Error openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return &errorResp.Error
	}
	return nil
}
