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

package errors

import "fmt"

// ReducerError reports that a reducer failed while applying a signal to
// the state store. The run is treated as failed: no further signals are
// processed once this occurs.
type ReducerError struct {
	// SignalID is the id of the signal the reducer was applied to.
	SignalID int64

	// SignalName is the name of that signal.
	SignalName string

	// Key is the state key the failing reducer was registered against.
	Key string

	// Cause is the error the reducer returned.
	Cause error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer for key %q failed on signal %d (%s): %v", e.Key, e.SignalID, e.SignalName, e.Cause)
}

func (e *ReducerError) Unwrap() error { return e.Cause }

// BudgetExhaustedError reports that a run stopped because an activation
// budget (global or per-agent) was exhausted.
type BudgetExhaustedError struct {
	// Scope is either "global" or an agent name.
	Scope string

	// Limit is the budget that was reached.
	Limit int

	// RunID identifies the run that was stopped.
	RunID string
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("activation budget exhausted for %s (limit %d) in run %s", e.Scope, e.Limit, e.RunID)
}

// ReplayDivergenceError reports that a replayed run observed an agent
// decision that differs from what the recorded log shows for the same
// point in the run.
type ReplayDivergenceError struct {
	// SignalID is the id of the recorded signal the live run diverged at.
	SignalID int64

	// Expected is a description of what the recording shows.
	Expected string

	// Actual is a description of what the live run produced.
	Actual string
}

func (e *ReplayDivergenceError) Error() string {
	return fmt.Sprintf("replay diverged at signal %d: expected %s, got %s", e.SignalID, e.Expected, e.Actual)
}

// CancelledError reports that a run was stopped by an external
// cancellation request rather than completing, failing, or exhausting
// its budget.
type CancelledError struct {
	// Reason is the caller-supplied cancellation reason.
	Reason string

	// RunID identifies the cancelled run.
	RunID string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run %s cancelled: %s", e.RunID, e.Reason)
}

// ConfigError reports that an agent-set configuration file failed to load
// or validate.
type ConfigError struct {
	// Path is the file that was being loaded, if any.
	Path string

	// Reason describes what failed.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("config: %s: %v", e.Reason, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }
