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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogActivationStart(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	req := &ActivationRequest{
		AgentName:          "summarizer",
		RunID:              "run-123",
		TriggeringSignalID: 42,
		Metadata:           map[string]any{"source": "workflow:start"},
	}

	LogActivationStart(logger, req)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "agent_activated" {
		t.Errorf("expected event to be 'agent_activated', got: %v", logEntry["event"])
	}
	if logEntry["agent"] != "summarizer" {
		t.Errorf("expected agent to be 'summarizer', got: %v", logEntry["agent"])
	}
	if logEntry["run_id"] != "run-123" {
		t.Errorf("expected run_id to be 'run-123', got: %v", logEntry["run_id"])
	}
	if logEntry["triggering_signal_id"] != float64(42) {
		t.Errorf("expected triggering_signal_id to be 42, got: %v", logEntry["triggering_signal_id"])
	}
	if logEntry["source"] != "workflow:start" {
		t.Errorf("expected source metadata to be present, got: %v", logEntry["source"])
	}
}

func TestLogActivationResult_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	req := &ActivationRequest{AgentName: "summarizer", RunID: "run-123"}
	res := &ActivationResult{Success: true, DurationMs: 150, Metadata: map[string]any{"emitted": "summary:ready"}}

	LogActivationResult(logger, req, res)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "agent_completed" {
		t.Errorf("expected event to be 'agent_completed', got: %v", logEntry["event"])
	}
	if logEntry["success"] != true {
		t.Errorf("expected success to be true, got: %v", logEntry["success"])
	}
	if logEntry["duration_ms"] != float64(150) {
		t.Errorf("expected duration_ms to be 150, got: %v", logEntry["duration_ms"])
	}
	if logEntry["level"] != "INFO" {
		t.Errorf("expected level to be 'INFO', got: %v", logEntry["level"])
	}
	if logEntry["msg"] != "agent activation completed" {
		t.Errorf("expected msg to be 'agent activation completed', got: %v", logEntry["msg"])
	}
	if logEntry["emitted"] != "summary:ready" {
		t.Errorf("expected emitted metadata to be present, got: %v", logEntry["emitted"])
	}
	if _, ok := logEntry["error"]; ok {
		t.Errorf("expected no error field for a successful result")
	}
}

func TestLogActivationResult_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	req := &ActivationRequest{AgentName: "summarizer", RunID: "run-123"}
	res := &ActivationResult{Success: false, Error: "adapter timed out", DurationMs: 50}

	LogActivationResult(logger, req, res)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["success"] != false {
		t.Errorf("expected success to be false, got: %v", logEntry["success"])
	}
	if logEntry["error"] != "adapter timed out" {
		t.Errorf("expected error to be 'adapter timed out', got: %v", logEntry["error"])
	}
	if logEntry["level"] != "ERROR" {
		t.Errorf("expected level to be ERROR, got: %v", logEntry["level"])
	}
	if logEntry["msg"] != "agent activation failed" {
		t.Errorf("expected msg to be 'agent activation failed', got: %v", logEntry["msg"])
	}
}

func TestActivationMiddlewareWrap_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	mw := NewActivationMiddleware(logger)

	req := &ActivationRequest{AgentName: "summarizer", RunID: "run-123"}

	handlerCalled := false
	err := mw.Wrap(req, func() error {
		handlerCalled = true
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if !handlerCalled {
		t.Errorf("expected handler to be called")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var startLog map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &startLog); err != nil {
		t.Fatalf("expected valid JSON for start log: %v", err)
	}
	if startLog["event"] != "agent_activated" {
		t.Errorf("expected first log to be agent_activated, got: %v", startLog["event"])
	}

	var resultLog map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &resultLog); err != nil {
		t.Fatalf("expected valid JSON for result log: %v", err)
	}
	if resultLog["event"] != "agent_completed" {
		t.Errorf("expected second log to be agent_completed, got: %v", resultLog["event"])
	}
	if resultLog["success"] != true {
		t.Errorf("expected success to be true, got: %v", resultLog["success"])
	}
	if _, ok := resultLog["duration_ms"]; !ok {
		t.Errorf("expected duration_ms to be present")
	}
}

func TestActivationMiddlewareWrap_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	mw := NewActivationMiddleware(logger)

	req := &ActivationRequest{AgentName: "summarizer", RunID: "run-123"}
	testErr := errors.New("handler error")

	err := mw.Wrap(req, func() error {
		return testErr
	})
	if err != testErr {
		t.Errorf("expected error to be returned, got: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var resultLog map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &resultLog); err != nil {
		t.Fatalf("expected valid JSON for result log: %v", err)
	}
	if resultLog["success"] != false {
		t.Errorf("expected success to be false, got: %v", resultLog["success"])
	}
	if resultLog["error"] != "handler error" {
		t.Errorf("expected error to be 'handler error', got: %v", resultLog["error"])
	}
	if resultLog["level"] != "ERROR" {
		t.Errorf("expected level to be ERROR, got: %v", resultLog["level"])
	}
}

func TestNewActivationMiddleware(t *testing.T) {
	logger := New(nil)
	mw := NewActivationMiddleware(logger)

	if mw == nil {
		t.Fatalf("expected non-nil middleware")
	}
	if mw.logger != logger {
		t.Errorf("expected middleware to use the provided logger")
	}
}
