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

// Package config loads the YAML agent-set file that describes a run:
// the agent definitions, the end condition, the activation budget, and
// how the run should be recorded and observed. It is grounded on the
// teacher's internal/config package: the same Load/applyDefaults/
// loadFromEnv layering (file, then defaults, then environment, then
// validation) generalized from Conductor's controller/provider/security
// configuration onto Open Harness's agent-set shape.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-harness/openharness/pkg/agent"
	"github.com/open-harness/openharness/pkg/agent/mcpadapter"
	harnesserrors "github.com/open-harness/openharness/pkg/errors"
	"github.com/open-harness/openharness/pkg/recorder"
	"github.com/open-harness/openharness/pkg/recorder/sqlitestore"
	"github.com/open-harness/openharness/pkg/signal"
)

// LogConfig configures the root logger.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// OutputSchemaConfig mirrors agent.OutputSchema for YAML.
type OutputSchemaConfig struct {
	Query    string `yaml:"query,omitempty"`
	Describe string `yaml:"describe,omitempty"`
}

// MCPAdapterConfig describes an external MCP server process to run an
// agent's activations against, via pkg/agent/mcpadapter.
type MCPAdapterConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args,omitempty"`
	Env            []string `yaml:"env,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`

	// RateLimit caps tool calls per second against this server; zero
	// means unlimited. RateBurst sizes the token bucket (default 1).
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
}

// AgentConfig mirrors agent.Definition for YAML.
type AgentConfig struct {
	Name           string              `yaml:"name"`
	ActivateOn     []string            `yaml:"activate_on"`
	When           string              `yaml:"when,omitempty"`
	Emits          []string            `yaml:"emits,omitempty"`
	OutputSchema   *OutputSchemaConfig `yaml:"output_schema,omitempty"`
	Updates        string              `yaml:"updates,omitempty"`
	Prompt         string              `yaml:"prompt,omitempty"`
	MaxActivations int                 `yaml:"max_activations,omitempty"`

	// MCP, when set, wires this agent's ExecutionAdapter to an external
	// MCP server process via pkg/agent/mcpadapter. Agents without MCP
	// configured need their adapter supplied in code.
	MCP *MCPAdapterConfig `yaml:"mcp,omitempty"`
}

// RecordingConfig configures how a run's signal log is persisted.
type RecordingConfig struct {
	// Mode is one of "live", "record", "replay". Empty means "live".
	Mode string `yaml:"mode,omitempty"`

	// Backend selects the Store implementation: "file" (directory of
	// JSONL run logs) or "sqlite" (single-file archive).
	Backend string `yaml:"backend,omitempty"`

	// Path is the FileStore directory or the SQLite database file,
	// depending on Backend.
	Path string `yaml:"path,omitempty"`

	// RunID identifies the recording. Required for replay.
	RunID string `yaml:"run_id,omitempty"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`

	// ExportPath, if set, writes span JSON to this file instead of
	// discarding it.
	ExportPath string `yaml:"export_path,omitempty"`
}

// AgentSet is the root of an Open Harness agent-set configuration file:
// everything RunWorkflow needs apart from the concrete ExecutionAdapter
// instances, which are wired in code (adapters talk to external
// processes or services and are not safely expressible as YAML).
type AgentSet struct {
	Version int `yaml:"version,omitempty"`

	Log LogConfig `yaml:"log,omitempty"`

	Agents []AgentConfig `yaml:"agents"`

	// EndWhen is an expr-lang expression; see harness.Options.EndWhen.
	EndWhen string `yaml:"end_when,omitempty"`

	// MaxActivations is the global activation budget. Zero uses the
	// harness package's own default.
	MaxActivations int `yaml:"max_activations,omitempty"`

	// TimeoutSeconds bounds the whole run. Zero means unbounded.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	Recording RecordingConfig `yaml:"recording,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`

	// Input seeds the payload of the initial workflow:start signal.
	Input map[string]any `yaml:"input,omitempty"`

	// InitialState seeds the state store before workflow:start.
	InitialState map[string]any `yaml:"initial_state,omitempty"`
}

// Default returns an AgentSet with no agents and sensible ambient
// defaults; callers fill in Agents before use.
func Default() *AgentSet {
	return &AgentSet{
		Version: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Recording: RecordingConfig{
			Mode:    "live",
			Backend: "file",
		},
	}
}

// Load reads, defaults, environment-overrides, and validates an
// agent-set file at path. An empty path resolves to AgentSetPath().
func Load(path string) (*AgentSet, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := AgentSetPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				path = defaultPath
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &harnesserrors.ConfigError{Path: path, Reason: "failed to load agent set", Cause: err}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &harnesserrors.ConfigError{Path: path, Reason: "validation failed", Cause: err}
	}

	return cfg, nil
}

func (c *AgentSet) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agent set file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills zero-valued ambient fields, leaving any value the
// file already set untouched.
func (c *AgentSet) applyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Recording.Mode == "" {
		c.Recording.Mode = defaults.Recording.Mode
	}
	if c.Recording.Backend == "" && c.Recording.Mode != "live" {
		c.Recording.Backend = defaults.Recording.Backend
	}
}

// loadFromEnv applies OPENHARNESS_* overrides, taking precedence over
// the file and the defaults.
func (c *AgentSet) loadFromEnv() {
	if val := os.Getenv("OPENHARNESS_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("OPENHARNESS_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("OPENHARNESS_END_WHEN"); val != "" {
		c.EndWhen = val
	}
	if val := os.Getenv("OPENHARNESS_MAX_ACTIVATIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxActivations = n
		}
	}
	if val := os.Getenv("OPENHARNESS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.TimeoutSeconds = int(d.Seconds())
		}
	}
	if val := os.Getenv("OPENHARNESS_RECORDING_MODE"); val != "" {
		c.Recording.Mode = strings.ToLower(val)
	}
	if val := os.Getenv("OPENHARNESS_RECORDING_PATH"); val != "" {
		c.Recording.Path = val
	}
	if val := os.Getenv("OPENHARNESS_RECORDING_RUN_ID"); val != "" {
		c.Recording.RunID = val
	}
}

// ToDefinitions converts the YAML agent configs into agent.Definition
// values the harness package consumes directly.
func (c *AgentSet) ToDefinitions() []agent.Definition {
	defs := make([]agent.Definition, 0, len(c.Agents))
	for _, a := range c.Agents {
		def := agent.Definition{
			Name:           a.Name,
			When:           a.When,
			Emits:          a.Emits,
			Updates:        a.Updates,
			Prompt:         a.Prompt,
			MaxActivations: a.MaxActivations,
		}
		for _, p := range a.ActivateOn {
			def.ActivateOn = append(def.ActivateOn, signal.Pattern(p))
		}
		if a.OutputSchema != nil {
			def.OutputSchema = &agent.OutputSchema{
				Query:    a.OutputSchema.Query,
				Describe: a.OutputSchema.Describe,
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (c *AgentSet) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BuildStore opens the recorder.Store described by Recording.Backend
// and Recording.Path. Mode "live" has no store and returns (nil, nil).
func (c *AgentSet) BuildStore() (recorder.Store, error) {
	if c.Recording.Mode == "" || c.Recording.Mode == "live" {
		return nil, nil
	}

	switch c.Recording.Backend {
	case "sqlite":
		store, err := sqlitestore.New(sqlitestore.Config{Path: c.Recording.Path, WAL: true})
		if err != nil {
			return nil, fmt.Errorf("open sqlite recording store: %w", err)
		}
		return store, nil
	case "file", "":
		store, err := recorder.NewFileStore(c.Recording.Path)
		if err != nil {
			return nil, fmt.Errorf("open file recording store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown recording backend %q", c.Recording.Backend)
	}
}

// BuildMCPAdapters starts one mcpadapter.Adapter per agent that
// declares an mcp block, returning them keyed by agent name. Agents
// without an mcp block are omitted; callers must supply their
// ExecutionAdapter directly. Callers are responsible for stopping any
// process this starts by calling Close on the returned adapters.
func (c *AgentSet) BuildMCPAdapters(ctx context.Context) (map[string]agent.ExecutionAdapter, error) {
	adapters := make(map[string]agent.ExecutionAdapter)
	for _, a := range c.Agents {
		if a.MCP == nil {
			continue
		}

		timeout := time.Duration(a.MCP.TimeoutSeconds) * time.Second
		ad, err := mcpadapter.New(ctx, mcpadapter.Config{
			ServerName: a.Name,
			Command:    a.MCP.Command,
			Args:       a.MCP.Args,
			Env:        a.MCP.Env,
			Timeout:    timeout,
			RateLimit:  a.MCP.RateLimit,
			RateBurst:  a.MCP.RateBurst,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %q: start mcp adapter: %w", a.Name, err)
		}
		adapters[a.Name] = ad
	}
	return adapters, nil
}
