package schema

import "time"

// NodeStatus represents the lifecycle state of a node within a run.
type NodeStatus string

const (
	NodeStatusIdle    NodeStatus = "idle"
	NodeStatusActive  NodeStatus = "active"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
	NodeStatusWaiting NodeStatus = "waiting"
)

// LogKind classifies entries in the run trace.
type LogKind string

const (
	LogStart     LogKind = "start"
	LogComplete  LogKind = "complete"
	LogError     LogKind = "error"
	LogCondition LogKind = "condition"
	LogData      LogKind = "data"
	LogSkip      LogKind = "skip"
)

// LogEntry is an immutable record appended to the run trace. The log is the
// authoritative human-readable account of a run, total-ordered by append time.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	NodeID    string         `json:"node_id"`
	NodeLabel string         `json:"node_label"`
	Kind      LogKind        `json:"kind"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Success   *bool          `json:"success,omitempty"`
}

// NodeState is the per-node execution record, keyed by node ID.
type NodeState struct {
	Status     NodeStatus     `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// RunSnapshot is an immutable copy of the full run state, broadcast to the
// engine's observer after every mutation.
type RunSnapshot struct {
	RunID         string               `json:"run_id"`
	Running       bool                 `json:"running"`
	Paused        bool                 `json:"paused"`
	CurrentNodeID string               `json:"current_node_id,omitempty"`
	Path          []string             `json:"path"`
	Context       map[string]any       `json:"context"`
	Nodes         map[string]NodeState `json:"nodes"`
	Log           []LogEntry           `json:"log"`
	Speed         float64              `json:"speed"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	EndedAt       *time.Time           `json:"ended_at,omitempty"`
}

// Condition evaluation outcomes. Unevaluated marks predicates whose shape was
// not recognized; it is surfaced distinctly instead of defaulting to true.
type ConditionOutcome string

const (
	OutcomeTrue        ConditionOutcome = "true"
	OutcomeFalse       ConditionOutcome = "false"
	OutcomeUnevaluated ConditionOutcome = "unevaluated"
)

// Met reports whether the outcome lets execution proceed down the true path.
// Unevaluated predicates proceed so an authoring mistake does not dead-end a
// simulation; the trace still records them as unevaluated.
func (o ConditionOutcome) Met() bool {
	return o == OutcomeTrue || o == OutcomeUnevaluated
}
