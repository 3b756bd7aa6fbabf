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

package config

import (
	"fmt"
	"strings"

	"github.com/open-harness/openharness/pkg/agent"
	"github.com/open-harness/openharness/pkg/signal"
	"github.com/open-harness/openharness/pkg/state"
)

// Validate checks structural correctness of an agent set: unique,
// non-empty agent names, at least one activation pattern per agent,
// and that every guard expression (When, EndWhen) at least compiles.
// It does not check that referenced ExecutionAdapters exist, since
// those are wired in code, not in the file.
func (c *AgentSet) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("agent set must define at least one agent")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agents[%d]: duplicate agent name %q", i, a.Name)
		}
		seen[a.Name] = true

		if len(a.ActivateOn) == 0 {
			return fmt.Errorf("agent %q: activate_on must list at least one pattern", a.Name)
		}
		for _, p := range a.ActivateOn {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("agent %q: activate_on contains an empty pattern", a.Name)
			}
		}
	}

	guards := agent.NewGuardEvaluator()
	emptySnap := state.New(nil).Get()
	probeSignal := signal.Signal{Name: "validate:probe"}

	for _, a := range c.Agents {
		if a.When == "" {
			continue
		}
		if _, err := guards.Evaluate(a.When, emptySnap, probeSignal); err != nil {
			return fmt.Errorf("agent %q: invalid when expression: %w", a.Name, err)
		}
	}

	if c.EndWhen != "" {
		if _, err := guards.Evaluate(c.EndWhen, emptySnap, probeSignal); err != nil {
			return fmt.Errorf("end_when: invalid expression: %w", err)
		}
	}

	switch c.Recording.Mode {
	case "", "live":
	case "record":
		if c.Recording.Backend != "file" && c.Recording.Backend != "sqlite" {
			return fmt.Errorf("recording: backend must be \"file\" or \"sqlite\", got %q", c.Recording.Backend)
		}
	case "replay":
		if c.Recording.RunID == "" {
			return fmt.Errorf("recording: run_id is required for replay mode")
		}
	default:
		return fmt.Errorf("recording: unknown mode %q", c.Recording.Mode)
	}

	return nil
}
