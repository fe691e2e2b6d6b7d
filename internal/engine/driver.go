package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mellora/flowsim/internal/logging"
	"github.com/mellora/flowsim/pkg/schema"
)

// execResult is what a node executor hands back to the driver.
type execResult struct {
	// output is recorded as the node's output snapshot.
	output map[string]any
	// next lists successor node IDs to visit, in order.
	next []string
	// skipRoots lists successors of branches not taken; the driver marks
	// their transitive closure skipped without executing them.
	skipRoots []string
}

// runLoop is the driver goroutine: it walks from every trigger node and
// finalizes the run when traversal ends.
func (e *Engine) runLoop(input map[string]any) {
	defer close(e.done)

	e.mu.Lock()
	runID := e.state.runID
	e.mu.Unlock()

	ctx := logging.WithRunID(context.Background(), runID)

	triggers := e.triggers()
	if len(triggers) == 0 {
		e.appendLog(schema.LogEntry{
			Kind:    schema.LogError,
			Message: "no trigger node in graph, nothing to run",
		})
	}
	for _, trigger := range triggers {
		e.visit(ctx, trigger, input)
	}

	e.mu.Lock()
	e.state.running = false
	e.state.currentNodeID = ""
	now := time.Now()
	e.state.endedAt = &now
	aborted := e.state.aborted
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	if aborted {
		e.logger.InfoContext(ctx, "run aborted")
	} else {
		e.logger.InfoContext(ctx, "run completed")
	}
}

// visit executes one node and recurses into its successors. The visited set
// (the execution path) guarantees termination on cyclic graphs: a node
// already visited in this run is never re-entered.
func (e *Engine) visit(ctx context.Context, node *schema.Node, input map[string]any) {
	if e.isAborted() {
		return
	}
	if !e.awaitResume() {
		return
	}

	e.mu.Lock()
	if _, seen := e.state.visited[node.ID]; seen {
		e.mu.Unlock()
		return
	}
	e.state.visited[node.ID] = struct{}{}
	e.state.path = append(e.state.path, node.ID)
	e.state.currentNodeID = node.ID
	ns := e.state.nodes[node.ID]
	ns.Status = schema.NodeStatusActive
	started := time.Now()
	ns.StartedAt = &started
	ns.Input = copyMap(e.state.context)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	label := node.Label()
	nodeCtx := logging.WithNodeID(ctx, node.ID)
	e.logger.DebugContext(nodeCtx, "node started", slog.String("type", string(node.Type)))
	e.appendLog(schema.LogEntry{
		NodeID:    node.ID,
		NodeLabel: label,
		Kind:      schema.LogStart,
		Message:   fmt.Sprintf("executing %s", label),
	})

	if !e.delay() {
		return
	}

	result, err := e.executeNode(nodeCtx, node, input)

	// Stop may have fired while the executor was in a collaborator call; the
	// node was already forced back to idle and its result is void.
	if e.isAborted() {
		return
	}

	if err != nil {
		e.mu.Lock()
		ns.Status = schema.NodeStatusFailed
		ns.Error = err.Error()
		ns.DurationMs = time.Since(started).Milliseconds()
		snap = e.snapshotLocked()
		e.mu.Unlock()
		e.notify(snap)

		e.logger.WarnContext(nodeCtx, "node failed", slog.String("error", err.Error()))
		failed := false
		e.appendLog(schema.LogEntry{
			NodeID:    node.ID,
			NodeLabel: label,
			Kind:      schema.LogError,
			Message:   fmt.Sprintf("%s failed: %v", label, err),
			Success:   &failed,
		})
		// A failed node is a dead end for its branch only; sibling
		// branches keep going and the run completes.
		return
	}

	e.mu.Lock()
	ns.Status = schema.NodeStatusSuccess
	ns.DurationMs = time.Since(started).Milliseconds()
	ns.Output = copyMap(result.output)
	snap = e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	ok := true
	e.appendLog(schema.LogEntry{
		NodeID:    node.ID,
		NodeLabel: label,
		Kind:      schema.LogComplete,
		Message:   fmt.Sprintf("%s completed", label),
		Payload:   result.output,
		Success:   &ok,
	})

	if len(result.skipRoots) > 0 {
		e.propagateSkip(node, result.skipRoots, result.next)
	}

	for _, nextID := range result.next {
		next, ok := e.nodes[nextID]
		if !ok {
			continue
		}
		e.visit(ctx, next, input)
	}
}

// awaitResume blocks while the run is paused. Returns false when the run was
// aborted while waiting.
func (e *Engine) awaitResume() bool {
	for {
		e.mu.Lock()
		if !e.state.paused {
			e.mu.Unlock()
			return !e.isAborted()
		}
		resume := e.state.resumeCh
		abort := e.state.abortCh
		e.mu.Unlock()

		select {
		case <-resume:
		case <-abort:
			return false
		}
	}
}

// delay applies the speed-scaled artificial per-node pause that makes
// progress visible to a human observer. Returns false on abort.
func (e *Engine) delay() bool {
	e.mu.Lock()
	speed := e.state.speed
	abort := e.state.abortCh
	e.mu.Unlock()

	if e.baseDelay <= 0 {
		return !e.isAborted()
	}

	d := time.Duration(float64(e.baseDelay) / speed)
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-abort:
		return false
	}
}

func (e *Engine) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.aborted
}

// propagateSkip marks the transitive closure of the not-taken branches as
// skipped. Nodes already visited, and nodes the taken path can still reach,
// are left alone: a join fed by both sides belongs to the taken path.
func (e *Engine) propagateSkip(from *schema.Node, roots, taken []string) {
	e.mu.Lock()
	exclude := make(map[string]struct{}, len(taken))
	frontier := append([]string(nil), taken...)
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if _, ok := exclude[id]; ok {
			continue
		}
		exclude[id] = struct{}{}
		for _, s := range e.succ[id] {
			if _, visited := e.state.visited[s.target]; visited {
				continue
			}
			frontier = append(frontier, s.target)
		}
	}

	queue := make([]string, 0, len(roots))
	seen := make(map[string]struct{})
	for _, id := range roots {
		if _, visited := e.state.visited[id]; visited {
			continue
		}
		if _, ok := exclude[id]; ok {
			continue
		}
		queue = append(queue, id)
		seen[id] = struct{}{}
	}

	var skipped []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		ns := e.state.nodes[id]
		if ns.Status == schema.NodeStatusIdle {
			ns.Status = schema.NodeStatusSkipped
			skipped = append(skipped, id)
		}

		for _, s := range e.succ[id] {
			if _, visited := e.state.visited[s.target]; visited {
				continue
			}
			if _, ok := exclude[s.target]; ok {
				continue
			}
			if _, ok := seen[s.target]; ok {
				continue
			}
			seen[s.target] = struct{}{}
			queue = append(queue, s.target)
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	for _, id := range skipped {
		node := e.nodes[id]
		e.appendLog(schema.LogEntry{
			NodeID:    id,
			NodeLabel: node.Label(),
			Kind:      schema.LogSkip,
			Message:   fmt.Sprintf("%s skipped (branch not taken at %s)", node.Label(), from.Label()),
		})
	}
}
