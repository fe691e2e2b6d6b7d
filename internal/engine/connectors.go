package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mellora/flowsim/internal/expressions"
	"github.com/mellora/flowsim/pkg/schema"
)

// execConnector runs one of the domain connector nodes. Each connector reads
// upstream fields from the shared context (falling back to node-local
// defaults), attempts a best-effort real side effect through an injected
// collaborator, and on any failure substitutes a structurally equivalent
// mock result. Both paths write the output back into the shared context
// under a well-known key and log a data entry naming which path ran.
func (e *Engine) execConnector(ctx context.Context, node *schema.Node) (*execResult, error) {
	var cfg schema.ConnectorConfig
	if len(node.Data) > 0 {
		if err := json.Unmarshal(node.Data, &cfg); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid connector config").WithNode(node.ID).WithCause(err)
		}
	}

	data := e.contextCopy()
	for k, v := range cfg.Defaults {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}

	var (
		resultKey string
		output    map[string]any
		real      bool
		detail    string
	)

	switch node.Type {
	case schema.NodeWebhookIntake:
		resultKey, output, detail = e.connWebhookIntake(node, cfg, data)
	case schema.NodeRecordUpsert:
		resultKey, output, real, detail = e.connRecordUpsert(ctx, node, cfg, data)
	case schema.NodeContentGenerator:
		resultKey, output, real, detail = e.connContentGenerator(ctx, node, cfg, data)
	case schema.NodeItemProcessor:
		resultKey, output, detail = e.connItemProcessor(node, cfg, data)
	case schema.NodeTaskCreator:
		resultKey, output, real, detail = e.connTaskCreator(ctx, node, cfg, data)
	case schema.NodeDBWrite:
		resultKey, output, real, detail = e.connDBWrite(ctx, node, cfg, data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "not a connector type: %s", node.Type).WithNode(node.ID)
	}

	// A stop during the collaborator call voids the result; nothing is
	// written back and no data entry is logged.
	if e.isAborted() {
		return &execResult{output: output}, nil
	}

	if cfg.ResultKey != "" {
		resultKey = cfg.ResultKey
	}
	e.setContext(resultKey, output)

	source := "mock"
	if real {
		source = "real"
	}
	e.appendLog(schema.LogEntry{
		NodeID:    node.ID,
		NodeLabel: node.Label(),
		Kind:      schema.LogData,
		Message:   fmt.Sprintf("%s (%s)", detail, source),
		Payload:   output,
	})

	return &execResult{
		output: output,
		next:   e.successorsOf(node.ID),
	}, nil
}

// connWebhookIntake echoes the inbound event into the context. There is no
// real transport behind it; the result is always synthesized.
func (e *Engine) connWebhookIntake(node *schema.Node, cfg schema.ConnectorConfig, data map[string]any) (string, map[string]any, string) {
	event := stringOf(data["event"])
	if event == "" {
		event = "webhook.received"
	}
	body, _ := data["body"].(map[string]any)

	output := map[string]any{
		"intake_id": "intake-" + node.ID,
		"event":     event,
		"body":      body,
		"accepted":  true,
	}
	return "webhook_data", output, fmt.Sprintf("webhook intake accepted %s", event)
}

// connRecordUpsert maps context fields into a record and upserts it through
// the record persister when one is wired in.
func (e *Engine) connRecordUpsert(ctx context.Context, node *schema.Node, cfg schema.ConnectorConfig, data map[string]any) (string, map[string]any, bool, string) {
	table := cfg.Table
	if table == "" {
		table = "records"
	}
	keyField := cfg.UpsertKey
	if keyField == "" {
		keyField = "id"
	}
	key := stringOf(data[keyField])
	if key == "" {
		key = "rec-" + node.ID
	}

	fields := mapFields(cfg.FieldMappings, data)
	ref, real := e.persistRecord(ctx, node, table, key, fields)

	output := map[string]any{
		"table":   ref.Table,
		"key":     ref.Key,
		"created": ref.Created,
		"fields":  fields,
	}
	return "record", output, real, fmt.Sprintf("record upsert %s/%s", table, key)
}

// connContentGenerator interpolates the document template and hands it to
// the document creator when one is wired in.
func (e *Engine) connContentGenerator(ctx context.Context, node *schema.Node, cfg schema.ConnectorConfig, data map[string]any) (string, map[string]any, bool, string) {
	title := cfg.Title
	if title == "" {
		title = node.Label()
	}
	title = expressions.Interpolate(title, data)
	body := expressions.Interpolate(cfg.Template, data)

	real := false
	ref := map[string]any{
		"id":    "doc-" + node.ID,
		"title": title,
	}
	if e.collab.Documents != nil {
		e.setNodeStatus(node.ID, schema.NodeStatusWaiting)
		doc, err := e.collab.Documents.CreateDocument(ctx, title, body)
		e.setNodeStatus(node.ID, schema.NodeStatusActive)
		if err == nil {
			real = true
			ref = map[string]any{"id": doc.ID, "title": doc.Title}
			if doc.URL != "" {
				ref["url"] = doc.URL
			}
		}
	}

	ref["body"] = body
	return "document", ref, real, fmt.Sprintf("generated document %q", title)
}

// connItemProcessor walks the list under the configured source key and
// synthesizes a processed copy. Pure simulation, no collaborator.
func (e *Engine) connItemProcessor(node *schema.Node, cfg schema.ConnectorConfig, data map[string]any) (string, map[string]any, string) {
	sourceKey := cfg.SourceKey
	if sourceKey == "" {
		sourceKey = "items"
	}

	items, _ := data[sourceKey].([]any)
	processed := make([]any, 0, len(items))
	for i, item := range items {
		processed = append(processed, map[string]any{
			"index":     i,
			"item":      item,
			"processed": true,
		})
	}

	output := map[string]any{
		"source_key":      sourceKey,
		"processed_count": len(processed),
		"items":           processed,
	}
	return "processed_items", output, fmt.Sprintf("processed %d items from %s", len(processed), sourceKey)
}

// connTaskCreator persists a task record when the record persister is wired
// in, falling back to a synthesized task.
func (e *Engine) connTaskCreator(ctx context.Context, node *schema.Node, cfg schema.ConnectorConfig, data map[string]any) (string, map[string]any, bool, string) {
	title := expressions.Interpolate(cfg.Title, data)
	if title == "" {
		title = "Follow up"
	}
	assignee := expressions.Interpolate(cfg.Assignee, data)
	key := "task-" + node.ID

	fields := map[string]any{
		"title":    title,
		"assignee": assignee,
		"status":   "open",
	}
	ref, real := e.persistRecord(ctx, node, "tasks", key, fields)

	output := map[string]any{
		"task_id":  ref.Key,
		"title":    title,
		"assignee": assignee,
		"status":   "open",
	}
	return "created_task", output, real, fmt.Sprintf("created task %q", title)
}

// connDBWrite writes mapped fields to an arbitrary table.
func (e *Engine) connDBWrite(ctx context.Context, node *schema.Node, cfg schema.ConnectorConfig, data map[string]any) (string, map[string]any, bool, string) {
	table := cfg.Table
	if table == "" {
		table = "records"
	}
	key := "row-" + node.ID
	if cfg.UpsertKey != "" {
		if v := stringOf(data[cfg.UpsertKey]); v != "" {
			key = v
		}
	}

	fields := mapFields(cfg.FieldMappings, data)
	ref, real := e.persistRecord(ctx, node, table, key, fields)

	output := map[string]any{
		"table":   ref.Table,
		"key":     ref.Key,
		"created": ref.Created,
		"fields":  fields,
	}
	return "db_result", output, real, fmt.Sprintf("wrote %s/%s", table, key)
}

// persistRecord attempts the real record persister and falls back to a mock
// reference. Collaborator failures never surface to the driver.
func (e *Engine) persistRecord(ctx context.Context, node *schema.Node, table, key string, fields map[string]any) (ref persistedRef, real bool) {
	if e.collab.Records != nil {
		e.setNodeStatus(node.ID, schema.NodeStatusWaiting)
		r, err := e.collab.Records.UpsertRecord(ctx, table, key, fields)
		e.setNodeStatus(node.ID, schema.NodeStatusActive)
		if err == nil {
			return persistedRef{Table: r.Table, Key: r.Key, Created: r.Created}, true
		}
	}
	return persistedRef{Table: table, Key: key, Created: true}, false
}

type persistedRef struct {
	Table   string
	Key     string
	Created bool
}

// mapFields copies mapped context fields into a record, skipping sources the
// context does not carry.
func mapFields(mappings []schema.FieldMapping, data map[string]any) map[string]any {
	fields := make(map[string]any, len(mappings))
	for _, m := range mappings {
		if m.Source == "" || m.Target == "" {
			continue
		}
		if v, ok := data[m.Source]; ok {
			fields[m.Target] = v
		}
	}
	return fields
}
