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

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	connectAttempts = 3
	connectDelay    = 2 * time.Second
	connectTimeout  = 10 * time.Second
)

// Supported client transports.
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Client is an SSE connection to one capability server. Tool call failures
// come back as text payloads, not errors: the model sees what went wrong and
// decides what to do about it.
//
// Safe for concurrent use: workers holding different jobs of the same agent
// may race to establish the connection, but only one dial wins and the rest
// see it.
type Client struct {
	name      string
	url       string
	transport string
	headers   map[string]string

	mu        sync.Mutex
	mcpClient *client.Client
	tools     []mcp.Tool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport selects the wire transport; empty or unknown values fall
// back to SSE.
func WithTransport(t string) ClientOption {
	return func(c *Client) {
		if t != "" {
			c.transport = t
		}
	}
}

// WithHeaders attaches headers to every request of the connection (e.g.
// authentication for external servers).
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) { c.headers = headers }
}

// NewClient prepares a client for the server at url. No connection is made
// until Connect.
func NewClient(name, url string, opts ...ClientOption) *Client {
	c := &Client{name: name, url: url, transport: TransportSSE}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

func (c *Client) URL() string { return c.url }

func (c *Client) Transport() string { return c.transport }

// Connected reports whether Connect has succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mcpClient != nil
}

// Connect dials the server, retrying a few times so agents may come up in
// any order during startup. Connect is idempotent: concurrent callers
// serialize, and once a connection exists further calls return immediately.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mcpClient != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(connectDelay):
			}
		}

		if err := c.connectOnce(ctx); err != nil {
			lastErr = err
			slog.Warn("MCP connect failed",
				"server", c.name, "url", c.url, "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("connecting to %s after %d attempts: %w", c.name, connectAttempts, lastErr)
}

func (c *Client) connectOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, connectTimeout)
	defer cancel()

	mcpClient, err := c.newTransportClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("starting transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "oneprompt", Version: "0.1.0"}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("initializing: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("listing tools: %w", err)
	}

	c.mcpClient = mcpClient
	c.tools = listResp.Tools
	slog.Info("Connected to MCP server", "server", c.name, "tools", len(c.tools))
	return nil
}

// Tools lists the server's tools as of Connect time.
func (c *Client) Tools() []mcp.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools
}

// Call invokes a tool and flattens the result to text. Transport and tool
// errors are rendered into the payload.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) string {
	c.mu.Lock()
	mcpClient := c.mcpClient
	c.mu.Unlock()
	if mcpClient == nil {
		return fmt.Sprintf("Error: not connected to server %s", c.name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		slog.Warn("MCP tool call failed", "server", c.name, "tool", name, "error", err)
		return fmt.Sprintf("Error calling tool %s: %v", name, err)
	}

	text := flattenContent(resp.Content)
	if resp.IsError && text == "" {
		return fmt.Sprintf("Error calling tool %s: unknown error", name)
	}
	return text
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mcpClient == nil {
		return nil
	}
	err := c.mcpClient.Close()
	c.mcpClient = nil
	c.tools = nil
	return err
}

func (c *Client) newTransportClient() (*client.Client, error) {
	switch c.transport {
	case TransportStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(c.headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(c.headers))
		}
		return client.NewStreamableHttpClient(c.url, opts...)
	default:
		var opts []transport.ClientOption
		if len(c.headers) > 0 {
			opts = append(opts, client.WithHeaders(c.headers))
		}
		return client.NewSSEMCPClient(c.url, opts...)
	}
}

func flattenContent(contents []mcp.Content) string {
	var texts []string
	for _, content := range contents {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	return strings.Join(texts, "\n")
}
