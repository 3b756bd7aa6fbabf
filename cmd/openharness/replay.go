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

	"github.com/spf13/cobra"

	"github.com/open-harness/openharness/internal/cli"
	"github.com/open-harness/openharness/internal/config"
	"github.com/open-harness/openharness/pkg/harness"
)

func newReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <run-id>",
		Short: "Re-emit a recorded run's signal log and verify it reproduces",
		Long: `Replay loads the agent set that produced a recording and re-emits
its signal log through a fresh run, bypassing agent execution. It fails
with a replay-divergence reason if the recorded log could not be
reproduced bit-exactly against the current agent set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayRun(cmd, args[0])
		},
	}

	return cmd
}

func replayRun(cmd *cobra.Command, runID string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to load agent set", Cause: err}
	}

	if cfg.Recording.Backend == "" {
		cfg.Recording.Backend = "file"
	}
	cfg.Recording.Mode = "replay"
	cfg.Recording.RunID = runID

	store, err := cfg.BuildStore()
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "failed to open recording store", Cause: err}
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
		Recording: harness.Recording{
			Mode:  harness.ModeReplay,
			Store: store,
			RunID: runID,
		},
	}

	result, err := harness.RunWorkflow(ctx, opts)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "replay failed to start", Cause: err}
	}

	printResult(cmd, result)
	return exitErrorForResult(result)
}
