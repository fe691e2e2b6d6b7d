package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlowsimServer(t *testing.T) {
	s := NewFlowsimServer(FlowsimServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.sessions)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewFlowsimServer(FlowsimServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 11)

	expectedTools := []string{
		"flowsim.start",
		"flowsim.status",
		"flowsim.pause",
		"flowsim.resume",
		"flowsim.stop",
		"flowsim.set_speed",
		"flowsim.reset",
		"flowsim.validate",
		"flowsim.testdata",
		"flowsim.scenarios",
		"flowsim.watch",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"start", "flowsim.start", "Start a simulation run with a named scenario or a custom payload"},
		{"status", "flowsim.status", "Get the current run snapshot: node statuses, execution path, shared context, and trace log"},
		{"pause", "flowsim.pause", "Pause the running simulation at its next suspension point"},
		{"resume", "flowsim.resume", "Resume a paused simulation"},
		{"stop", "flowsim.stop", "Abort the running simulation; active nodes return to idle"},
		{"set_speed", "flowsim.set_speed", "Set the playback speed multiplier (higher is faster)"},
		{"reset", "flowsim.reset", "Clear all run state back to the idle snapshot, keeping the graph"},
		{"validate", "flowsim.validate", "Validate a trigger payload without starting a run; returns line-annotated errors and warnings"},
		{"testdata", "flowsim.testdata", "Synthesize a test payload for a trigger category"},
		{"scenarios", "flowsim.scenarios", "List the registered simulation scenarios"},
		{"watch", "flowsim.watch", "Subscribe this session to run snapshot notifications"},
	}

	s := NewFlowsimServer(FlowsimServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
