package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mellora/flowsim/internal/engine"
	"github.com/mellora/flowsim/pkg/schema"
)

// FlowsimServerDeps holds the dependencies for creating a FlowsimServer.
type FlowsimServerDeps struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

// FlowsimServer wraps an MCP server with simulation tool handlers, so an
// agent or editor process can drive workflow simulations over stdio.
type FlowsimServer struct {
	engine    *engine.Engine
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *RunNotifier
	mcpServer *server.MCPServer
}

// NewFlowsimServer creates a FlowsimServer with all tools registered.
func NewFlowsimServer(deps FlowsimServerDeps) *FlowsimServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowsimServer{
		engine:   deps.Engine,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"flowsim",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowsim simulates sales-automation workflows. Use flowsim.start to begin a run (with a scenario or custom payload), flowsim.status to inspect it, flowsim.pause/resume/stop/set_speed/reset to control playback, flowsim.validate to check a payload, flowsim.testdata to synthesize one, flowsim.scenarios to list scenarios, and flowsim.watch to receive run snapshots as notifications."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewRunNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *FlowsimServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *FlowsimServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// HandleSnapshot forwards an engine snapshot to all watching sessions. Wire
// it as the engine's observer.
func (s *FlowsimServer) HandleSnapshot(snap schema.RunSnapshot) {
	s.notifier.Broadcast(snap)
}

func (s *FlowsimServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: pauseTool(), Handler: s.handlePause},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: stopTool(), Handler: s.handleStop},
		{Tool: setSpeedTool(), Handler: s.handleSetSpeed},
		{Tool: resetTool(), Handler: s.handleReset},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: testDataTool(), Handler: s.handleTestData},
		{Tool: scenariosTool(), Handler: s.handleScenarios},
		{Tool: watchTool(), Handler: s.handleWatch},
	}
}

// --- Tool definitions ---

func startTool() mcp.Tool {
	return mcp.NewTool("flowsim.start",
		mcp.WithDescription("Start a simulation run with a named scenario or a custom payload"),
		mcp.WithString("scenario", mcp.Description("Registered scenario name (see flowsim.scenarios)")),
		mcp.WithObject("payload", mcp.Description("Custom trigger payload (validated before the run starts)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("flowsim.status",
		mcp.WithDescription("Get the current run snapshot: node statuses, execution path, shared context, and trace log"),
	)
}

func pauseTool() mcp.Tool {
	return mcp.NewTool("flowsim.pause",
		mcp.WithDescription("Pause the running simulation at its next suspension point"),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("flowsim.resume",
		mcp.WithDescription("Resume a paused simulation"),
	)
}

func stopTool() mcp.Tool {
	return mcp.NewTool("flowsim.stop",
		mcp.WithDescription("Abort the running simulation; active nodes return to idle"),
	)
}

func setSpeedTool() mcp.Tool {
	return mcp.NewTool("flowsim.set_speed",
		mcp.WithDescription("Set the playback speed multiplier (higher is faster)"),
		mcp.WithNumber("multiplier", mcp.Required(), mcp.Description("Speed multiplier, must be > 0")),
	)
}

func resetTool() mcp.Tool {
	return mcp.NewTool("flowsim.reset",
		mcp.WithDescription("Clear all run state back to the idle snapshot, keeping the graph"),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowsim.validate",
		mcp.WithDescription("Validate a trigger payload without starting a run; returns line-annotated errors and warnings"),
		mcp.WithString("payload", mcp.Required(), mcp.Description("Raw payload text (JSON)")),
	)
}

func testDataTool() mcp.Tool {
	return mcp.NewTool("flowsim.testdata",
		mcp.WithDescription("Synthesize a test payload for a trigger category"),
		mcp.WithString("category", mcp.Required(),
			mcp.Enum("deal_stage_changed", "deal_created", "contact_created", "task_due", "form_submitted", "webhook_received"),
			mcp.Description("Trigger category"),
		),
		mcp.WithString("tag", mcp.Description("Scenario tag shaping the payload (e.g. high_value, urgent)")),
	)
}

func scenariosTool() mcp.Tool {
	return mcp.NewTool("flowsim.scenarios",
		mcp.WithDescription("List the registered simulation scenarios"),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("flowsim.watch",
		mcp.WithDescription("Subscribe this session to run snapshot notifications"),
	)
}
