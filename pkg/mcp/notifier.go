package mcp

import (
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mellora/flowsim/pkg/schema"
)

// RunNotifier pushes run snapshots to watching sessions as MCP
// notifications.
type RunNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

func NewRunNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *RunNotifier {
	return &RunNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Broadcast sends the snapshot to every watching session. Best-effort:
// sessions that disappeared between registration and send are dropped.
func (n *RunNotifier) Broadcast(snap schema.RunSnapshot) {
	payload := map[string]any{
		"run_id":  snap.RunID,
		"running": snap.Running,
		"paused":  snap.Paused,
		"current": snap.CurrentNodeID,
		"path":    snap.Path,
	}
	for _, sessionID := range n.sessions.Watchers() {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/flowsim/snapshot", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Unwatch(sessionID)
		}
	}
}
