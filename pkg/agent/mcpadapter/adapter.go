// Package mcpadapter is a reference agent.ExecutionAdapter backed by a
// real Model Context Protocol server, reached via mark3labs/mcp-go. It
// is grounded on the teacher's internal/mcp.Client (stdio transport,
// initialize handshake, CallTool) and internal/mcp.MCPTool (response
// shaping), adapted from Conductor's tools.Tool interface onto the
// spec's ExecutionAdapter contract (§4.4, §6).
//
// Specific LLM provider clients are explicitly out of scope (spec §1),
// so this adapter does not reason about what tool to call: the agent's
// Prompt is itself the invocation, a JSON object of
// {"tool": "<name>", "arguments": {...}}. Agents that need an LLM in
// the loop bring their own ExecutionAdapter; this one demonstrates the
// contract end-to-end against a real external process.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"github.com/open-harness/openharness/pkg/agent"
)

// Config configures the MCP server process this adapter talks to.
type Config struct {
	ServerName string
	Command    string
	Args       []string
	Env        []string
	Timeout    time.Duration

	// RateLimit caps how many tool calls per second this adapter sends
	// to the server process. Zero means unlimited.
	RateLimit float64

	// RateBurst is the token bucket size backing RateLimit. Zero
	// defaults to 1.
	RateBurst int
}

// Adapter implements agent.ExecutionAdapter by calling a single MCP
// tool per activation.
type Adapter struct {
	serverName string
	client     *client.Client
	timeout    time.Duration

	// limiter throttles outbound tool calls, grounded on the teacher's
	// datadogRateLimiter (internal/integration/datadog): a
	// golang.org/x/time/rate.Limiter wrapping an external process
	// boundary. Nil means unlimited.
	limiter *rate.Limiter
}

// New starts the configured MCP server over stdio and completes the
// initialize handshake.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("mcpadapter: server name is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcpadapter: command is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcpadapter: create client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcpadapter: start client: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "openharness",
				Version: "0.1.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("mcpadapter: initialize: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Adapter{serverName: cfg.ServerName, client: mcpClient, timeout: timeout, limiter: limiter}, nil
}

// Close shuts down the underlying MCP server process.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// invocation is the shape an agent's Prompt must parse as.
type invocation struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Run implements agent.ExecutionAdapter.
func (a *Adapter) Run(ctx context.Context, in agent.Input, emit func(agent.Intermediate)) (agent.Output, error) {
	var inv invocation
	if err := json.Unmarshal([]byte(in.Prompt), &inv); err != nil {
		return agent.Output{}, fmt.Errorf("mcpadapter: prompt is not a valid tool invocation: %w", err)
	}
	if inv.Tool == "" {
		return agent.Output{}, fmt.Errorf("mcpadapter: prompt did not name a tool")
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return agent.Output{}, fmt.Errorf("mcpadapter: rate limit wait: %w", err)
		}
	}

	emit(agent.Intermediate{Kind: agent.IntermediateToolCall, Payload: map[string]any{
		"server":    a.serverName,
		"tool":      inv.Tool,
		"arguments": inv.Arguments,
	}})

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      inv.Tool,
			Arguments: inv.Arguments,
		},
	})
	if err != nil {
		return agent.Output{}, fmt.Errorf("mcpadapter: tool call failed: %w", err)
	}

	content, structured := collectContent(result)

	emit(agent.Intermediate{Kind: agent.IntermediateToolResult, Payload: map[string]any{
		"server":  a.serverName,
		"tool":    inv.Tool,
		"isError": result.IsError,
		"content": content,
	}})

	if result.IsError {
		return agent.Output{}, fmt.Errorf("mcpadapter: tool %q reported an error: %s", inv.Tool, content)
	}

	return agent.Output{Content: content, StructuredOutput: structured}, nil
}

// collectContent flattens an MCP tool result's content blocks into a
// display string, and additionally returns a structured value when the
// result was a single text block that itself parses as JSON (grounded
// on internal/mcp.MCPTool.Execute's "single text content" special case).
func collectContent(result *mcp.CallToolResult) (string, any) {
	if result == nil {
		return "", nil
	}

	if len(result.Content) == 1 {
		if text, ok := mcp.AsTextContent(result.Content[0]); ok {
			var parsed any
			if json.Unmarshal([]byte(text.Text), &parsed) == nil {
				return text.Text, parsed
			}
			return text.Text, nil
		}
	}

	var parts []string
	for _, block := range result.Content {
		if text, ok := mcp.AsTextContent(block); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
