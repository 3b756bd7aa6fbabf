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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-harness/openharness/internal/cli"
	"github.com/open-harness/openharness/internal/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an agent-set file",
		Long: `Validate loads the agent-set YAML file, applies defaults and
environment overrides, and checks it the same way run and replay
would: agent names are unique, every agent declares an activation
pattern, and every guard expression (when, end_when) compiles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd)
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailed, Message: "agent set is invalid", Cause: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d agent(s) defined\n", len(cfg.Agents))
	return nil
}
