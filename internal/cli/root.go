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

// Package cli holds the machinery shared by every openharness
// subcommand: the root command and a typed exit-code error, grounded
// on the teacher's internal/cli + internal/commands/shared (ExitError,
// HandleExitError), narrowed from Conductor's verbose/quiet/json/config
// global flag set down to the two flags an agent-set runner needs.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pkgerrors "github.com/open-harness/openharness/pkg/errors"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version information, set from main via
// ldflags.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the recorded build-time version information.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// NewRootCommand creates the root openharness command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openharness",
		Short: "Open Harness - a reactive multi-agent orchestration runtime",
		Long: `Open Harness runs a declarative set of agent definitions against a
signal bus: agents activate on matching signals, emit new signals, and
the run ends when its declared end condition is met, its activation
budget is exhausted, or it is cancelled.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the agent-set YAML file (default: ~/.config/openharness/agents.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose (debug-level) logging")

	return cmd
}

// Exit codes for the openharness CLI (spec §6: RunWorkflow's terminal
// Status/Reason mapped onto process exit codes).
const (
	ExitComplete         = 0
	ExitFailed           = 1
	ExitAborted          = 2
	ExitBudgetExhausted  = 3
	ExitReplayDivergence = 4
)

// ExitError is an error that carries the process exit code it should
// produce.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Cause }

// HandleExitError prints err (if any) and exits with its code, or with
// ExitFailed if err is not an *ExitError.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		printSuggestion(err)
		os.Exit(exitErr.Code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(err)
	os.Exit(ExitFailed)
}

func printSuggestion(err error) {
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if s := userErr.Suggestion(); s != "" {
					fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", s)
				}
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
