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

// Package server exposes the runtime's outer surfaces: the admin HTTP API
// that triggers agents and the main MCP server with process-global tools.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oneprompt/oneprompt/pkg/agent"
	"github.com/oneprompt/oneprompt/pkg/job"
)

// HTTPServer is the admin API: health, per-agent trigger, metrics.
type HTTPServer struct {
	agents *agent.Registry
	jobs   *job.Service
	server *http.Server
}

func NewHTTPServer(port int, agents *agent.Registry, jobs *job.Service) *HTTPServer {
	s := &HTTPServer{agents: agents, jobs: jobs}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Server is running"})
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/{agent}/run", s.handleRun)

	return r
}

type runRequest struct {
	Prompt string `json:"prompt"`
}

// handleRun fires a job for the named agent and returns immediately.
func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "agent")

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Invalid request body"})
		return
	}

	a, ok := s.agents.Get(name)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": fmt.Sprintf("Unknown agent %s", name)})
		return
	}

	if _, err := s.jobs.Submit(a, req.Prompt, a.StrategyName(), nil); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "agent": name})
}

// Start serves in the background; the channel delivers the terminal error.
func (s *HTTPServer) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
