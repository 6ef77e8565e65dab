// Package mcp exposes the agent over the Model Context Protocol so an
// external assistant can submit tasks, dry-run policy checks, and
// manage confirmations through stdio transport.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"screenpilot/internal/agent"
	"screenpilot/internal/approval"
	"screenpilot/internal/memory"
	"screenpilot/internal/policy"
	"screenpilot/internal/power"
)

// Server wraps the MCP SDK server around a wired agent loop.
type Server struct {
	mcpServer *mcpsdk.Server
	loop      *agent.Loop
	engine    *policy.Engine
	approvals *approval.Store
	mem       *memory.Store
	monitor   *power.Monitor
}

// New registers the screenpilot tools over an already-wired loop. The
// caller owns the loop's lifecycle; the MCP server only drives cycles.
func New(loop *agent.Loop, engine *policy.Engine, approvals *approval.Store,
	mem *memory.Store, monitor *power.Monitor) *Server {
	s := &Server{
		loop:      loop,
		engine:    engine,
		approvals: approvals,
		mem:       mem,
		monitor:   monitor,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "screenpilot",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run serves MCP on stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenpilot_task",
		Description: "Run one device-control task through the full policy pipeline. Returns per-action outcomes; denied actions include the reason.",
	}, s.handleTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenpilot_check",
		Description: "Check whether an action against an app would be allowed under current policy and operating mode, without executing it.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenpilot_approve",
		Description: "Grant or deny a pending confirmation. Use the approval_key returned by a needs_confirmation decision.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenpilot_pending",
		Description: "List pending confirmation requests.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenpilot_history",
		Description: "List recent interaction records, optionally filtered by app package.",
	}, s.handleHistory)
}
