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

// Package mcp wraps the MCP SSE transport: every agent hosts a capability
// server here and talks to its tools through Client.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server hosts a set of tools over SSE on a fixed local port.
type Server struct {
	name string
	port int

	mcpServer *server.MCPServer
	sseServer *server.SSEServer
}

func NewServer(name, version string, port int) *Server {
	return &Server{
		name: name,
		port: port,
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
		),
	}
}

// AddTool registers a tool with its handler. Must happen before Start.
func (s *Server) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
}

// URL is the SSE endpoint clients connect to.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/sse", s.port)
}

func (s *Server) Port() int {
	return s.port
}

// Start serves SSE in the background. The returned channel delivers the
// terminal serve error, if any.
func (s *Server) Start() <-chan error {
	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://localhost:%d", s.port)),
	)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("MCP server listening", "name", s.name, "port", s.port)
		if err := s.sseServer.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("mcp server %s: %w", s.name, err)
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.sseServer == nil {
		return nil
	}
	return s.sseServer.Shutdown(ctx)
}

// TextResult builds a plain text tool result.
func TextResult(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}
