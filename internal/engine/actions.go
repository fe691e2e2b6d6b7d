package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mellora/flowsim/internal/expressions"
	"github.com/mellora/flowsim/pkg/schema"
)

// execAction dispatches on the actionType tag and synthesizes a
// deterministic mock result reflecting the configured parameters. String
// templates are interpolated against the shared context first.
func (e *Engine) execAction(ctx context.Context, node *schema.Node) (*execResult, error) {
	var cfg schema.ActionConfig
	if len(node.Data) > 0 {
		if err := json.Unmarshal(node.Data, &cfg); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid action config").WithNode(node.ID).WithCause(err)
		}
	}

	data := e.contextCopy()
	var output map[string]any
	var err error

	switch cfg.ActionType {
	case schema.ActionCreateTask:
		output = e.actCreateTask(node, cfg, data)
	case schema.ActionRecurringTask:
		output, err = e.actRecurringTask(node, cfg, data)
	case schema.ActionSendMessage:
		output = e.actSendMessage(ctx, node, cfg, data)
	case schema.ActionSendEmail:
		output = e.actSendEmail(ctx, node, cfg, data)
	case schema.ActionUpdateFields:
		output, err = e.actUpdateFields(node, cfg, data)
	case schema.ActionAddNote:
		output = map[string]any{
			"note_id": "note-" + node.ID,
			"note":    expressions.Interpolate(cfg.Note, data),
		}
	case schema.ActionSendWebhook:
		output = e.actSendWebhook(node, cfg, data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "unknown action type: %s", cfg.ActionType).WithNode(node.ID)
	}
	if err != nil {
		return nil, err
	}

	return &execResult{
		output: output,
		next:   e.successorsOf(node.ID),
	}, nil
}

func (e *Engine) actCreateTask(node *schema.Node, cfg schema.ActionConfig, data map[string]any) map[string]any {
	output := map[string]any{
		"task_id":  "task-" + node.ID,
		"title":    expressions.Interpolate(cfg.Title, data),
		"assignee": expressions.Interpolate(cfg.Assignee, data),
		"status":   "created",
	}
	if cfg.DueIn != "" {
		if d, err := time.ParseDuration(cfg.DueIn); err == nil {
			output["due_at"] = time.Now().Add(d).Format(time.RFC3339)
		} else {
			output["due_in"] = cfg.DueIn
		}
	}
	return output
}

// actRecurringTask validates the cron schedule and reports the next three
// occurrences. A schedule that does not parse is an authoring error and
// fails the node.
func (e *Engine) actRecurringTask(node *schema.Node, cfg schema.ActionConfig, data map[string]any) (map[string]any, error) {
	if cfg.Schedule == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "recurring task has no schedule").WithNode(node.ID)
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron schedule %q: %v", cfg.Schedule, err).WithNode(node.ID)
	}

	next := make([]string, 0, 3)
	at := time.Now()
	for i := 0; i < 3; i++ {
		at = sched.Next(at)
		next = append(next, at.Format(time.RFC3339))
	}

	return map[string]any{
		"task_id":          "task-" + node.ID,
		"title":            expressions.Interpolate(cfg.Title, data),
		"assignee":         expressions.Interpolate(cfg.Assignee, data),
		"schedule":         cfg.Schedule,
		"next_occurrences": next,
		"status":           "scheduled",
	}, nil
}

// actSendMessage attempts the injected messenger and falls back to a mock
// delivery. Transport failures never fail the node.
func (e *Engine) actSendMessage(ctx context.Context, node *schema.Node, cfg schema.ActionConfig, data map[string]any) map[string]any {
	channel := cfg.Channel
	if channel == "" {
		channel = "general"
	}
	message := expressions.Interpolate(cfg.Message, data)

	if e.collab.Messages != nil {
		if receipt, err := e.collab.Messages.Send(ctx, channel, "", "", message); err == nil {
			return map[string]any{
				"message_id": receipt.ID,
				"channel":    receipt.Channel,
				"message":    message,
				"delivery":   "real",
			}
		}
	}
	return map[string]any{
		"message_id": "msg-" + node.ID,
		"channel":    channel,
		"message":    message,
		"delivery":   "mock",
	}
}

func (e *Engine) actSendEmail(ctx context.Context, node *schema.Node, cfg schema.ActionConfig, data map[string]any) map[string]any {
	to := expressions.Interpolate(cfg.To, data)
	subject := expressions.Interpolate(cfg.Subject, data)
	body := expressions.Interpolate(cfg.Body, data)

	if e.collab.Messages != nil {
		if receipt, err := e.collab.Messages.Send(ctx, "email", to, subject, body); err == nil {
			return map[string]any{
				"email_id": receipt.ID,
				"to":       to,
				"subject":  subject,
				"delivery": "real",
			}
		}
	}
	return map[string]any{
		"email_id": "email-" + node.ID,
		"to":       to,
		"subject":  subject,
		"delivery": "mock",
	}
}

// actUpdateFields computes its values and writes them back into the shared
// context so downstream nodes observe them.
func (e *Engine) actUpdateFields(node *schema.Node, cfg schema.ActionConfig, data map[string]any) (map[string]any, error) {
	if len(cfg.Fields) == 0 {
		return map[string]any{"updated_fields": []string{}}, nil
	}

	computed := expressions.InterpolateMap(cfg.Fields, data)
	if err := e.mergeContext(computed); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "update fields").WithNode(node.ID).WithCause(err)
	}

	names := make([]string, 0, len(computed))
	for k := range computed {
		names = append(names, k)
	}
	sortStrings(names)

	return map[string]any{
		"updated_fields": names,
		"values":         computed,
	}, nil
}

func (e *Engine) actSendWebhook(node *schema.Node, cfg schema.ActionConfig, data map[string]any) map[string]any {
	method := cfg.Method
	if method == "" {
		method = "POST"
	}
	body := expressions.InterpolateMap(cfg.Payload, data)

	return map[string]any{
		"webhook_id": "hook-" + node.ID,
		"url":        expressions.Interpolate(cfg.URL, data),
		"method":     method,
		"payload":    body,
		"delivery":   "mock",
		"status":     fmt.Sprintf("%s queued", method),
	}
}
