package schema

import "encoding/json"

// Node is one vertex of an automation graph. Nodes are immutable inputs to a
// simulation run: the editor produces them, the engine only reads them.
type Node struct {
	ID   string          `json:"id"`
	Type NodeType        `json:"type"`
	Data json.RawMessage `json:"data"` // type-dependent configuration record
}

// Edge is a directed connection between two nodes. SourceHandle distinguishes
// branch outputs on condition and multi-branch nodes ("true", "false", or a
// branch ID).
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// NodeType enumerates the kinds of nodes in an automation graph.
type NodeType string

const (
	NodeTrigger          NodeType = "trigger"
	NodeCondition        NodeType = "condition"
	NodeRouter           NodeType = "router"
	NodeBranch           NodeType = "conditionalBranch"
	NodeAction           NodeType = "action"
	NodeAgent            NodeType = "aiAgent"
	NodeWebhookIntake    NodeType = "webhookIntake"
	NodeRecordUpsert     NodeType = "recordUpsert"
	NodeContentGenerator NodeType = "contentGenerator"
	NodeItemProcessor    NodeType = "itemProcessor"
	NodeTaskCreator      NodeType = "taskCreator"
	NodeDBWrite          NodeType = "dbWrite"
)

// ValidNodeTypes is the closed set of recognized node types.
var ValidNodeTypes = map[NodeType]bool{
	NodeTrigger:          true,
	NodeCondition:        true,
	NodeRouter:           true,
	NodeBranch:           true,
	NodeAction:           true,
	NodeAgent:            true,
	NodeWebhookIntake:    true,
	NodeRecordUpsert:     true,
	NodeContentGenerator: true,
	NodeItemProcessor:    true,
	NodeTaskCreator:      true,
	NodeDBWrite:          true,
}

// IsConnector reports whether the node type is a domain connector (best-effort
// external side effect with mock fallback).
func (t NodeType) IsConnector() bool {
	switch t {
	case NodeWebhookIntake, NodeRecordUpsert, NodeContentGenerator,
		NodeItemProcessor, NodeTaskCreator, NodeDBWrite:
		return true
	}
	return false
}

// Label extracts the display label from the node's data record.
// Falls back to the node ID when the data carries no label.
func (n *Node) Label() string {
	var base struct {
		Label string `json:"label"`
	}
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &base); err == nil && base.Label != "" {
			return base.Label
		}
	}
	return n.ID
}

// --- Per-type node configuration records ---

// TriggerConfig is the data record of trigger nodes.
type TriggerConfig struct {
	Label       string          `json:"label"`
	TriggerType TriggerCategory `json:"triggerType,omitempty"`
}

// TriggerCategory selects the synthetic payload family for a trigger.
type TriggerCategory string

const (
	TriggerDealStage   TriggerCategory = "deal_stage_changed"
	TriggerDealCreated TriggerCategory = "deal_created"
	TriggerContactNew  TriggerCategory = "contact_created"
	TriggerTaskDue     TriggerCategory = "task_due"
	TriggerFormSubmit  TriggerCategory = "form_submitted"
	TriggerWebhook     TriggerCategory = "webhook_received"
)

// Predicate is the declarative condition shared by condition nodes and
// multi-branch rules. Two forms are recognized: a raw comparison string in
// Condition ("deal_value > 50000"), or a structured form selected by
// ConditionType. When neither form matches, evaluation is surfaced as
// "unevaluated" rather than silently passing.
type Predicate struct {
	Condition     string   `json:"condition,omitempty"`
	ConditionType string   `json:"conditionType,omitempty"` // value_threshold | stage_equals | category_equals | field_compare
	Field         string   `json:"field,omitempty"`
	Operator      string   `json:"operator,omitempty"` // equals | not_equals | contains | is_empty | is_not_empty
	Value         any      `json:"value,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	Category      string   `json:"category,omitempty"`
}

// Structured predicate forms.
const (
	PredicateValueThreshold = "value_threshold"
	PredicateStageEquals    = "stage_equals"
	PredicateCategoryEquals = "category_equals"
	PredicateFieldCompare   = "field_compare"
)

// ConditionConfig is the data record of binary condition nodes.
type ConditionConfig struct {
	Label string `json:"label"`
	Predicate
}

// RouterConfig is the data record of router nodes. RoutingLogic is a
// descriptive tag carried into the trace only.
type RouterConfig struct {
	Label        string `json:"label"`
	RoutingLogic string `json:"routingLogic,omitempty"`
}

// BranchRule is one named predicate of a multi-branch node. Rules are
// non-exclusive: any number may match on a single evaluation.
type BranchRule struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Predicate
}

// BranchConfig is the data record of conditionalBranch nodes.
type BranchConfig struct {
	Label    string       `json:"label"`
	Branches []BranchRule `json:"branches"`
}

// ActionConfig is the data record of generic action nodes. Which fields apply
// depends on ActionType; string fields are interpolated against the shared
// context before being reflected in the mock result.
type ActionConfig struct {
	Label      string `json:"label"`
	ActionType string `json:"actionType"`

	// create-task / recurring-task
	Title    string `json:"title,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	DueIn    string `json:"dueIn,omitempty"` // Go duration, e.g. "72h"
	Schedule string `json:"schedule,omitempty"` // cron expression (recurring-task)

	// send-message
	Message string `json:"message,omitempty"`
	Channel string `json:"channel,omitempty"`

	// send-email
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	// update-fields
	Fields map[string]any `json:"fields,omitempty"`

	// add-note
	Note string `json:"note,omitempty"`

	// send-webhook
	URL     string         `json:"url,omitempty"`
	Method  string         `json:"method,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Generic action types dispatched by the action executor.
const (
	ActionCreateTask    = "create-task"
	ActionSendMessage   = "send-message"
	ActionSendEmail     = "send-email"
	ActionUpdateFields  = "update-fields"
	ActionAddNote       = "add-note"
	ActionRecurringTask = "recurring-task"
	ActionSendWebhook   = "send-webhook"
)

// AgentConfig is the data record of ai-agent nodes. The simulation never calls
// a real model; OutputMode shapes the synthesized response.
type AgentConfig struct {
	Label           string           `json:"label"`
	Prompt          string           `json:"prompt,omitempty"`
	OutputMode      string           `json:"outputMode,omitempty"` // text | structured | tool_call (default: text)
	Tools           []string         `json:"tools,omitempty"`
	OutputFields    []string         `json:"outputFields,omitempty"`
	ExtractionRules []ExtractionRule `json:"extractionRules,omitempty"`
}

// Agent output modes.
const (
	AgentOutputText       = "text"
	AgentOutputStructured = "structured"
	AgentOutputToolCall   = "tool_call"
)

// ExtractionRule synthesizes one extracted field on an ai-agent node.
// Type selects how Source is interpreted:
//   - value:    Source is a shared-context key; the current value is copied.
//   - jq:       Source is a jq expression evaluated against the shared context.
//   - template: Source is a {{field}} template interpolated against the context.
type ExtractionRule struct {
	Field   string `json:"field"`
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Default any    `json:"default,omitempty"`
}

// Extraction rule types.
const (
	ExtractValue    = "value"
	ExtractJQ       = "jq"
	ExtractTemplate = "template"
)

// FieldMapping copies one shared-context field into a connector payload.
type FieldMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ConnectorConfig is the data record shared by the domain connector nodes.
// Absent fields fall back to documented defaults per connector.
type ConnectorConfig struct {
	Label         string         `json:"label"`
	Table         string         `json:"table,omitempty"`     // recordUpsert, dbWrite (default: "records")
	UpsertKey     string         `json:"upsertKey,omitempty"` // recordUpsert (default: "id")
	FieldMappings []FieldMapping `json:"fieldMappings,omitempty"`
	Template      string         `json:"template,omitempty"`  // contentGenerator document template
	SourceKey     string         `json:"sourceKey,omitempty"` // itemProcessor input list key (default: "items")
	ResultKey     string         `json:"resultKey,omitempty"` // context key the output is written under
	Defaults      map[string]any `json:"defaults,omitempty"`  // node-local fallbacks for absent context fields
	Title         string         `json:"title,omitempty"`     // taskCreator
	Assignee      string         `json:"assignee,omitempty"`  // taskCreator
}
