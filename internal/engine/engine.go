package engine

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mellora/flowsim/internal/expressions"
	"github.com/mellora/flowsim/internal/payload"
	"github.com/mellora/flowsim/internal/services"
	"github.com/mellora/flowsim/pkg/schema"
)

// Observer receives an immutable snapshot of the full run state after every
// mutation. Exactly one observer per engine instance.
type Observer func(schema.RunSnapshot)

// successor is one outgoing edge of a node, in declaration order.
type successor struct {
	target string
	handle string
}

// Engine simulates one automation graph. It owns a single live run at a time;
// construct one engine per concurrent simulation desired.
type Engine struct {
	nodes map[string]*schema.Node
	succ  map[string][]successor

	observer  Observer
	logger    *slog.Logger
	collab    services.Collaborators
	validator *payload.Validator
	exprEng   *expressions.ExprEngine
	jqEng     *expressions.GoJQEngine
	baseDelay time.Duration

	mu    sync.Mutex
	state *runState
	done  chan struct{}
}

// runState is the mutable record of the current (or last) run.
type runState struct {
	runID         string
	running       bool
	paused        bool
	aborted       bool
	currentNodeID string
	path          []string
	visited       map[string]struct{}
	context       map[string]any
	nodes         map[string]*schema.NodeState
	log           []schema.LogEntry
	speed         float64
	startedAt     *time.Time
	endedAt       *time.Time

	// resumeCh is replaced on every pause and closed on resume; the driver
	// blocks on it instead of polling the paused flag.
	resumeCh chan struct{}
	// abortCh is closed by Stop. Checked at every suspension point.
	abortCh chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithCollaborators injects the optional external services used by domain
// connectors. Nil fields mean the connector synthesizes a mock result.
func WithCollaborators(c services.Collaborators) Option {
	return func(e *Engine) { e.collab = c }
}

// WithBaseDelay sets the unscaled per-node artificial delay. The effective
// delay is baseDelay divided by the speed multiplier.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Engine) { e.baseDelay = d }
}

// New builds an Engine over a node/edge graph. The graph is validated once
// here; it is immutable for the engine's lifetime.
func New(nodes []schema.Node, edges []schema.Edge, observer Observer, opts ...Option) (*Engine, error) {
	if len(nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph has no nodes")
	}

	e := &Engine{
		nodes:     make(map[string]*schema.Node, len(nodes)),
		succ:      make(map[string][]successor, len(nodes)),
		observer:  observer,
		logger:    slog.Default(),
		validator: payload.NewValidator(),
		exprEng:   expressions.NewExprEngine(),
		jqEng:     expressions.NewGoJQEngine(),
		baseDelay: 800 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}

	for i := range nodes {
		// Copy into engine-owned storage; the caller keeps its slice.
		n := nodes[i]
		if n.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "node has empty ID")
		}
		if _, exists := e.nodes[n.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", n.ID)
		}
		if !schema.ValidNodeTypes[n.Type] {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node %s has unknown type: %s", n.ID, n.Type)
		}
		n.Data = append(json.RawMessage(nil), n.Data...)
		e.nodes[n.ID] = &n
	}

	for _, edge := range edges {
		if _, ok := e.nodes[edge.Source]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge references unknown source: %s", edge.Source)
		}
		if _, ok := e.nodes[edge.Target]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge references unknown target: %s", edge.Target)
		}
		e.succ[edge.Source] = append(e.succ[edge.Source], successor{target: edge.Target, handle: edge.SourceHandle})
	}

	e.state = e.newRunState()
	return e, nil
}

// newRunState returns the initial idle state: every node idle, empty path,
// empty log, speed 1.
func (e *Engine) newRunState() *runState {
	s := &runState{
		visited: make(map[string]struct{}),
		context: make(map[string]any),
		nodes:   make(map[string]*schema.NodeState, len(e.nodes)),
		speed:   1,
		abortCh: make(chan struct{}),
	}
	for id := range e.nodes {
		s.nodes[id] = &schema.NodeState{Status: schema.NodeStatusIdle}
	}
	return s
}

// Start begins a run using a synthesized payload. The scenario argument is a
// registered scenario name; when empty, the trigger node's own category
// baseline is used. Starting while a run is active is rejected.
func (e *Engine) Start(scenario string) error {
	category, tag, err := e.resolveScenario(scenario)
	if err != nil {
		return err
	}
	return e.begin(payload.Synthesize(category, tag))
}

// StartWithPayload begins a run with a caller-supplied payload. The payload
// is validated against the trigger category's schema first; validation errors
// block the run from starting.
func (e *Engine) StartWithPayload(raw []byte) error {
	trigger := e.firstTrigger()
	if trigger == nil {
		return schema.NewError(schema.ErrCodeValidation, "graph has no trigger node")
	}

	result := e.validator.ValidateFor(triggerCategory(trigger), raw)
	if !result.Valid() {
		return result.ToError()
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid payload").WithCause(err)
	}
	return e.begin(data)
}

// ValidatePayload validates a raw payload against the trigger category's
// schema without starting a run.
func (e *Engine) ValidatePayload(raw []byte) *schema.ValidationResult {
	trigger := e.firstTrigger()
	if trigger == nil {
		return e.validator.Validate(raw)
	}
	return e.validator.ValidateFor(triggerCategory(trigger), raw)
}

// GenerateTestData synthesizes a payload for a trigger category and optional
// scenario tag.
func (e *Engine) GenerateTestData(category schema.TriggerCategory, tag string) map[string]any {
	return payload.Synthesize(category, tag)
}

// begin guards against an active run, resets per-run state, and launches the
// driver on its own goroutine.
func (e *Engine) begin(input map[string]any) error {
	e.mu.Lock()
	if e.state.running {
		e.mu.Unlock()
		return schema.NewError(schema.ErrCodeRunActive, "a run is already active")
	}

	speed := e.state.speed
	e.state = e.newRunState()
	e.state.speed = speed
	e.state.runID = uuid.New().String()
	e.state.running = true
	now := time.Now()
	e.state.startedAt = &now

	e.done = make(chan struct{})
	snap := e.snapshotLocked()
	runID := e.state.runID
	e.mu.Unlock()

	e.notify(snap)
	e.logger.Info("run started", slog.String("run_id", runID))

	go e.runLoop(input)
	return nil
}

// Pause suspends the driver at its next suspension point. No-op when not
// running or already paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.state.running || e.state.paused {
		e.mu.Unlock()
		return
	}
	e.state.paused = true
	e.state.resumeCh = make(chan struct{})
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// Resume releases a paused driver. No-op when not paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.state.paused {
		e.mu.Unlock()
		return
	}
	e.state.paused = false
	if e.state.resumeCh != nil {
		close(e.state.resumeCh)
		e.state.resumeCh = nil
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// Stop signals abort and forces any active or waiting node back to idle. No
// further nodes are visited; the driver goroutine winds down on its own.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.state.running {
		e.mu.Unlock()
		return
	}
	if !e.state.aborted {
		e.state.aborted = true
		close(e.state.abortCh)
	}
	// Release a paused driver so it can observe the abort.
	if e.state.resumeCh != nil {
		close(e.state.resumeCh)
		e.state.resumeCh = nil
	}
	e.state.paused = false
	for _, ns := range e.state.nodes {
		if ns.Status == schema.NodeStatusActive || ns.Status == schema.NodeStatusWaiting {
			ns.Status = schema.NodeStatusIdle
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// SetSpeed scales the per-node artificial delay. Multipliers at or below
// zero are ignored.
func (e *Engine) SetSpeed(multiplier float64) {
	if multiplier <= 0 {
		return
	}
	e.mu.Lock()
	e.state.speed = multiplier
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// Reset clears all per-run and per-node state back to the initial idle
// snapshot. The node/edge graph itself is kept. An active run is aborted and
// waited for first.
func (e *Engine) Reset() {
	e.mu.Lock()
	running := e.state.running
	done := e.done
	if running && !e.state.aborted {
		e.state.aborted = true
		close(e.state.abortCh)
		if e.state.resumeCh != nil {
			close(e.state.resumeCh)
			e.state.resumeCh = nil
		}
		e.state.paused = false
	}
	e.mu.Unlock()

	if running && done != nil {
		<-done
	}

	e.mu.Lock()
	e.state = e.newRunState()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// Snapshot returns an immutable copy of the full run state.
func (e *Engine) Snapshot() schema.RunSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Running reports whether a run is currently active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.running
}

// snapshotLocked deep-copies the run state. Caller holds e.mu.
func (e *Engine) snapshotLocked() schema.RunSnapshot {
	s := e.state
	snap := schema.RunSnapshot{
		RunID:         s.runID,
		Running:       s.running,
		Paused:        s.paused,
		CurrentNodeID: s.currentNodeID,
		Path:          append([]string(nil), s.path...),
		Context:       copyMap(s.context),
		Nodes:         make(map[string]schema.NodeState, len(s.nodes)),
		Log:           append([]schema.LogEntry(nil), s.log...),
		Speed:         s.speed,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
	}
	for id, ns := range s.nodes {
		c := *ns
		c.Input = copyMap(c.Input)
		c.Output = copyMap(c.Output)
		snap.Nodes[id] = c
	}
	return snap
}

// notify delivers a snapshot to the observer. Never called under e.mu.
func (e *Engine) notify(snap schema.RunSnapshot) {
	if e.observer != nil {
		e.observer(snap)
	}
}

// appendLog records a trace entry and broadcasts. Caller must not hold e.mu.
func (e *Engine) appendLog(entry schema.LogEntry) {
	entry.Timestamp = time.Now()
	e.mu.Lock()
	e.state.log = append(e.state.log, entry)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// resolveScenario maps a scenario name to its category and tag. An empty
// name falls back to the trigger node's own category.
func (e *Engine) resolveScenario(scenario string) (schema.TriggerCategory, string, error) {
	if scenario != "" {
		s, ok := payload.ScenarioByName(scenario)
		if !ok {
			return "", "", schema.NewErrorf(schema.ErrCodeNotFound, "unknown scenario: %s", scenario)
		}
		return s.Category, s.Tag, nil
	}

	trigger := e.firstTrigger()
	if trigger == nil {
		return "", "", schema.NewError(schema.ErrCodeValidation, "graph has no trigger node")
	}
	return triggerCategory(trigger), "", nil
}

// firstTrigger returns the first trigger node in the graph, or nil.
func (e *Engine) firstTrigger() *schema.Node {
	for _, n := range e.triggers() {
		return n
	}
	return nil
}

// triggers returns all trigger nodes in a stable order.
func (e *Engine) triggers() []*schema.Node {
	var ids []string
	for id, n := range e.nodes {
		if n.Type == schema.NodeTrigger {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)
	out := make([]*schema.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.nodes[id])
	}
	return out
}

// triggerCategory reads the trigger category from a trigger node's data,
// defaulting to deal-stage changes.
func triggerCategory(n *schema.Node) schema.TriggerCategory {
	var cfg schema.TriggerConfig
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &cfg)
	}
	if cfg.TriggerType == "" {
		return schema.TriggerDealStage
	}
	return cfg.TriggerType
}

// successorsOf returns all successor node IDs in edge order.
func (e *Engine) successorsOf(nodeID string) []string {
	edges := e.succ[nodeID]
	out := make([]string, 0, len(edges))
	for _, s := range edges {
		out = append(out, s.target)
	}
	return out
}

// successorsByHandle returns successors whose edge carries the given handle.
func (e *Engine) successorsByHandle(nodeID, handle string) []string {
	var out []string
	for _, s := range e.succ[nodeID] {
		if s.handle == handle {
			out = append(out, s.target)
		}
	}
	return out
}

// hasHandleTaggedEdges reports whether any outgoing edge carries a handle.
func (e *Engine) hasHandleTaggedEdges(nodeID string) bool {
	for _, s := range e.succ[nodeID] {
		if s.handle != "" {
			return true
		}
	}
	return false
}

// copyMap deep-copies a context map. Nested maps and slices from parsed JSON
// or connector outputs must not be shared between the live run and snapshots.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

// sortStrings sorts a small slice in place with insertion sort.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j] > key {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
}
