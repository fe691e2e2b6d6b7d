package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mellora/flowsim/internal/payload"
	"github.com/mellora/flowsim/pkg/schema"
)

// handleStart begins a simulation run from a scenario or a custom payload.
func (s *FlowsimServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenario := req.GetString("scenario", "")
	custom := mcp.ParseStringMap(req, "payload", nil)

	if scenario == "" && custom == nil {
		return mcp.NewToolResultError("either scenario or payload is required"), nil
	}

	// Capture session mapping so the caller sees snapshots for its run.
	s.captureSession(ctx)

	var err error
	if custom != nil {
		var raw []byte
		raw, err = json.Marshal(custom)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode payload: %v", err)), nil
		}
		err = s.engine.StartWithPayload(raw)
	} else {
		err = s.engine.Start(scenario)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
	}

	snap := s.engine.Snapshot()
	return marshalResult(map[string]any{
		"run_id":  snap.RunID,
		"running": snap.Running,
		"speed":   snap.Speed,
	})
}

// handleStatus returns the current run snapshot.
func (s *FlowsimServer) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.engine.Snapshot())
}

func (s *FlowsimServer) handlePause(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.engine.Pause()
	snap := s.engine.Snapshot()
	return marshalResult(map[string]any{"paused": snap.Paused, "running": snap.Running})
}

func (s *FlowsimServer) handleResume(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.engine.Resume()
	snap := s.engine.Snapshot()
	return marshalResult(map[string]any{"paused": snap.Paused, "running": snap.Running})
}

func (s *FlowsimServer) handleStop(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.engine.Stop()
	snap := s.engine.Snapshot()
	return marshalResult(map[string]any{"running": snap.Running, "run_id": snap.RunID})
}

func (s *FlowsimServer) handleSetSpeed(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	multiplier, err := req.RequireFloat("multiplier")
	if err != nil {
		return mcp.NewToolResultError("multiplier is required"), nil
	}
	if multiplier <= 0 {
		return mcp.NewToolResultError("multiplier must be > 0"), nil
	}
	s.engine.SetSpeed(multiplier)
	return marshalResult(map[string]any{"speed": s.engine.Snapshot().Speed})
}

func (s *FlowsimServer) handleReset(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.engine.Reset()
	return marshalResult(s.engine.Snapshot())
}

// handleValidate checks a raw payload and returns annotated issues.
func (s *FlowsimServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError("payload is required"), nil
	}

	result := s.engine.ValidatePayload([]byte(raw))
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleTestData synthesizes a payload for a trigger category.
func (s *FlowsimServer) handleTestData(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError("category is required"), nil
	}
	tag := req.GetString("tag", "")

	data := s.engine.GenerateTestData(schema.TriggerCategory(category), tag)
	return marshalResult(map[string]any{"category": category, "payload": data})
}

// handleScenarios lists the scenario registry.
func (s *FlowsimServer) handleScenarios(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := payload.Scenarios()
	out := make([]map[string]any, 0, len(list))
	for _, sc := range list {
		out = append(out, map[string]any{
			"name":        sc.Name,
			"category":    sc.Category,
			"tag":         sc.Tag,
			"description": sc.Description,
		})
	}
	return marshalResult(map[string]any{"scenarios": out})
}

// handleWatch subscribes the calling session to snapshot notifications.
func (s *FlowsimServer) handleWatch(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return mcp.NewToolResultError("no active session to subscribe"), nil
	}
	s.sessions.Watch(session.SessionID())
	return marshalResult(map[string]any{"watching": true, "session_id": session.SessionID()})
}

// captureSession subscribes the current session to snapshots if one exists.
func (s *FlowsimServer) captureSession(ctx context.Context) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Watch(session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
