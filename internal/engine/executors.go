package engine

import (
	"context"
	"encoding/json"

	"dario.cat/mergo"

	"github.com/mellora/flowsim/pkg/schema"
)

// executeNode dispatches on the node type. Anything returned as an error is
// caught by the driver and recorded as that node's failure.
func (e *Engine) executeNode(ctx context.Context, node *schema.Node, input map[string]any) (*execResult, error) {
	switch node.Type {
	case schema.NodeTrigger:
		return e.execTrigger(node, input)
	case schema.NodeCondition:
		return e.execCondition(ctx, node)
	case schema.NodeRouter:
		return e.execRouter(node)
	case schema.NodeBranch:
		return e.execBranch(ctx, node)
	case schema.NodeAction:
		return e.execAction(ctx, node)
	case schema.NodeAgent:
		return e.execAgent(ctx, node)
	default:
		if node.Type.IsConnector() {
			return e.execConnector(ctx, node)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "no executor for node type %s", node.Type).WithNode(node.ID)
	}
}

// execTrigger seeds the shared context with the run's input payload and
// advances to all successors.
func (e *Engine) execTrigger(node *schema.Node, input map[string]any) (*execResult, error) {
	if err := e.mergeContext(input); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "seed context").WithNode(node.ID).WithCause(err)
	}
	return &execResult{
		output: copyMap(input),
		next:   e.successorsOf(node.ID),
	}, nil
}

// execRouter is a pass-through fan-out. The routing-logic tag is carried
// into the trace only.
func (e *Engine) execRouter(node *schema.Node) (*execResult, error) {
	var cfg schema.RouterConfig
	if len(node.Data) > 0 {
		_ = json.Unmarshal(node.Data, &cfg)
	}
	output := map[string]any{}
	if cfg.RoutingLogic != "" {
		output["routing_logic"] = cfg.RoutingLogic
	}
	return &execResult{
		output: output,
		next:   e.successorsOf(node.ID),
	}, nil
}

// contextCopy returns a point-in-time copy of the shared context.
func (e *Engine) contextCopy() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMap(e.state.context)
}

// mergeContext writes values into the shared context, overwriting existing
// keys. Fields are only ever added or overwritten within a run, never
// deleted.
func (e *Engine) mergeContext(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	e.mu.Lock()
	err := mergo.Merge(&e.state.context, values, mergo.WithOverride)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify(snap)
	return nil
}

// setContext writes one value into the shared context.
func (e *Engine) setContext(key string, value any) {
	e.mu.Lock()
	e.state.context[key] = value
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// setNodeStatus updates one node's status outside the normal visit
// lifecycle, e.g. waiting during a collaborator call. Once the run is
// aborted the forced-idle statuses from Stop are final.
func (e *Engine) setNodeStatus(nodeID string, status schema.NodeStatus) {
	e.mu.Lock()
	if e.state.aborted {
		e.mu.Unlock()
		return
	}
	if ns, ok := e.state.nodes[nodeID]; ok {
		ns.Status = status
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}
