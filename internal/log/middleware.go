// Copyright 2025 Tom Barlow
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

package log

import (
	"log/slog"
	"time"
)

// ActivationRequest describes one agent activation for logging
// purposes, adapted from the teacher's RPCRequest onto the harness's
// own unit of work.
type ActivationRequest struct {
	// AgentName is the agent being activated.
	AgentName string

	// RunID identifies the run this activation belongs to.
	RunID string

	// TriggeringSignalID is the signal that caused this activation.
	TriggeringSignalID int64

	// Metadata contains additional request attributes.
	Metadata map[string]any
}

// ActivationResult describes the outcome of an agent activation for
// logging purposes, adapted from the teacher's RPCResponse.
type ActivationResult struct {
	Success    bool
	Error      string
	DurationMs int64
	Metadata   map[string]any
}

// LogActivationStart logs that an agent activation is beginning.
func LogActivationStart(logger *slog.Logger, req *ActivationRequest) {
	attrs := []any{
		"event", "agent_activated",
		"agent", req.AgentName,
		"run_id", req.RunID,
		"triggering_signal_id", req.TriggeringSignalID,
	}
	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}
	logger.Info("agent activation started", attrs...)
}

// LogActivationResult logs the outcome of an agent activation.
func LogActivationResult(logger *slog.Logger, req *ActivationRequest, res *ActivationResult) {
	attrs := []any{
		"event", "agent_completed",
		"agent", req.AgentName,
		"run_id", req.RunID,
		"success", res.Success,
		"duration_ms", res.DurationMs,
	}
	for k, v := range res.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "agent activation completed"
	if !res.Success {
		attrs = append(attrs, "error", res.Error)
		level = slog.LevelError
		message = "agent activation failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// ActivationMiddleware wraps an agent activation with start/result
// logging, adapted from the teacher's RPCMiddleware.
type ActivationMiddleware struct {
	logger *slog.Logger
}

// NewActivationMiddleware creates an ActivationMiddleware.
func NewActivationMiddleware(logger *slog.Logger) *ActivationMiddleware {
	return &ActivationMiddleware{logger: logger}
}

// Wrap logs req, runs handler, and logs its outcome and duration.
func (m *ActivationMiddleware) Wrap(req *ActivationRequest, handler func() error) error {
	start := time.Now()
	LogActivationStart(m.logger, req)

	err := handler()

	res := &ActivationResult{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	LogActivationResult(m.logger, req, res)

	return err
}
