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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-harness/openharness/internal/cli"
	"github.com/open-harness/openharness/internal/config"
	agentpkg "github.com/open-harness/openharness/pkg/agent"
	"github.com/open-harness/openharness/pkg/harness"
	"github.com/open-harness/openharness/pkg/harness/tracing"
)

func newRunCommand() *cobra.Command {
	var inputs []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an agent set to completion",
		Long: `Run loads an agent-set YAML file, starts a harness run, and blocks
until the run reaches a terminal status: complete, aborted, or failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentSet(cmd, inputs)
		},
	}

	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "Workflow input in key=value format (repeatable)")

	return cmd
}

func runAgentSet(cmd *cobra.Command, rawInputs []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to load agent set", Cause: err}
	}

	input, err := parseInputs(rawInputs)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "invalid --input", Cause: err}
	}
	for k, v := range cfg.Input {
		if _, ok := input[k]; !ok {
			input[k] = v
		}
	}

	ctx := context.Background()

	adapters, err := cfg.BuildMCPAdapters(ctx)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to start agent adapters", Cause: err}
	}
	defer closeAdapters(adapters)

	opts := harness.Options{
		Agents:         cfg.ToDefinitions(),
		Adapters:       adapters,
		InitialState:   cfg.InitialState,
		EndWhen:        cfg.EndWhen,
		MaxActivations: cfg.MaxActivations,
		Input:          input,
		Timeout:        cfg.Timeout(),
	}

	if cfg.Recording.Mode == "record" {
		store, err := cfg.BuildStore()
		if err != nil {
			return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to open recording store", Cause: err}
		}
		opts.Recording = harness.Recording{Mode: harness.ModeRecord, Store: store, RunID: cfg.Recording.RunID}
	}

	if cfg.Tracing.Enabled {
		tracingCfg := tracing.Config{ServiceName: cfg.Tracing.ServiceName}
		if cfg.Tracing.ExportPath != "" {
			f, err := os.Create(cfg.Tracing.ExportPath)
			if err != nil {
				return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to open trace export file", Cause: err}
			}
			defer f.Close()
			tracingCfg.Writer = f
		}

		provider, err := tracing.New(tracingCfg)
		if err != nil {
			return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to start tracing", Cause: err}
		}
		defer provider.Shutdown(ctx)
		opts.Tracer = provider
	}

	result, err := harness.RunWorkflow(ctx, opts)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "harness run failed to start", Cause: err}
	}

	printResult(cmd, result)
	return exitErrorForResult(result)
}

// parseInputs turns "key=value" pairs into a payload map. Values are
// kept as strings; agents that need structured input should read it
// via the execution adapter's Input.Context and parse it themselves.
func parseInputs(pairs []string) (map[string]any, error) {
	input := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		input[key] = value
	}
	return input, nil
}

func printResult(cmd *cobra.Command, result harness.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s\n", result.Status)
	if result.Reason != "" {
		fmt.Fprintf(out, "reason: %s\n", result.Reason)
	}
	fmt.Fprintf(out, "activations: %d\n", result.Metrics.Activations)
	fmt.Fprintf(out, "signals: %d\n", result.Metrics.SignalCount)
	fmt.Fprintf(out, "duration_ms: %d\n", result.Metrics.DurationMs)
	if result.RecordingID != "" {
		fmt.Fprintf(out, "recording_id: %s\n", result.RecordingID)
	}
}

// closeAdapters shuts down any adapter that owns an external process
// (currently just mcpadapter.Adapter). Adapters supplied in code that
// don't need cleanup are skipped.
func closeAdapters(adapters map[string]agentpkg.ExecutionAdapter) {
	for _, ad := range adapters {
		if closer, ok := ad.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}

// exitErrorForResult maps a terminal Result onto the process exit code
// scheme (spec §6).
func exitErrorForResult(result harness.Result) error {
	switch result.Status {
	case harness.StatusComplete:
		return nil
	case harness.StatusFailed:
		if result.Reason == "replay-divergence" {
			return &cli.ExitError{Code: cli.ExitReplayDivergence, Message: "replay diverged from the recorded signal log"}
		}
		return &cli.ExitError{Code: cli.ExitFailed, Message: fmt.Sprintf("run failed: %s", result.Reason)}
	case harness.StatusAborted:
		if result.Reason == "budget-exhausted" {
			return &cli.ExitError{Code: cli.ExitBudgetExhausted, Message: "activation budget exhausted"}
		}
		return &cli.ExitError{Code: cli.ExitAborted, Message: fmt.Sprintf("run aborted: %s", result.Reason)}
	default:
		return &cli.ExitError{Code: cli.ExitFailed, Message: fmt.Sprintf("unknown terminal status %q", result.Status)}
	}
}
