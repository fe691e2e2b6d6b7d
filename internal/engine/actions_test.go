package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellora/flowsim/internal/services"
	"github.com/mellora/flowsim/pkg/schema"
)

func actionEngine(t *testing.T, seed map[string]any, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithBaseDelay(0)}, opts...)
	e, err := New([]schema.Node{node("t", schema.NodeTrigger, "")}, nil, nil, opts...)
	require.NoError(t, err)
	require.NoError(t, e.mergeContext(seed))
	return e
}

func runAction(t *testing.T, e *Engine, data string) (*execResult, error) {
	t.Helper()
	n := node("act", schema.NodeAction, data)
	return e.execAction(context.Background(), &n)
}

func TestAction_CreateTask(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_name": "Acme Renewal"})

	result, err := runAction(t, e,
		`{"actionType":"create-task","title":"Review {{deal_name}}","assignee":"Sam","dueIn":"72h"}`)
	require.NoError(t, err)

	assert.Equal(t, "task-act", result.output["task_id"])
	assert.Equal(t, "Review Acme Renewal", result.output["title"])
	assert.Equal(t, "Sam", result.output["assignee"])
	assert.Contains(t, result.output, "due_at")
}

func TestAction_RecurringTask(t *testing.T) {
	e := actionEngine(t, nil)

	result, err := runAction(t, e,
		`{"actionType":"recurring-task","title":"Weekly sync","schedule":"0 9 * * 1"}`)
	require.NoError(t, err)

	assert.Equal(t, "0 9 * * 1", result.output["schedule"])
	next, ok := result.output["next_occurrences"].([]string)
	require.True(t, ok)
	assert.Len(t, next, 3)
}

func TestAction_RecurringTask_InvalidSchedule(t *testing.T) {
	e := actionEngine(t, nil)

	_, err := runAction(t, e, `{"actionType":"recurring-task","schedule":"not a cron"}`)
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestAction_SendMessage_MockDelivery(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_name": "Acme Renewal"})

	result, err := runAction(t, e,
		`{"actionType":"send-message","channel":"sales","message":"Deal update: {{deal_name}}"}`)
	require.NoError(t, err)

	assert.Equal(t, "mock", result.output["delivery"])
	assert.Equal(t, "sales", result.output["channel"])
	assert.Equal(t, "Deal update: Acme Renewal", result.output["message"])
}

func TestAction_SendMessage_RealDelivery(t *testing.T) {
	messenger := &mockMessenger{}
	e := actionEngine(t, nil, WithCollaborators(services.Collaborators{Messages: messenger}))

	result, err := runAction(t, e, `{"actionType":"send-message","channel":"sales","message":"hi"}`)
	require.NoError(t, err)

	assert.Equal(t, "real", result.output["delivery"])
	assert.Equal(t, 1, messenger.calls)
}

func TestAction_SendMessage_TransportFailureFallsBack(t *testing.T) {
	messenger := &mockMessenger{fail: true}
	e := actionEngine(t, nil, WithCollaborators(services.Collaborators{Messages: messenger}))

	result, err := runAction(t, e, `{"actionType":"send-message","message":"hi"}`)
	require.NoError(t, err, "transport failures never fail the node")
	assert.Equal(t, "mock", result.output["delivery"])
}

func TestAction_SendEmail(t *testing.T) {
	e := actionEngine(t, map[string]any{"contact_email": "dana@example.com"})

	result, err := runAction(t, e,
		`{"actionType":"send-email","to":"{{contact_email}}","subject":"Hello","body":"..."}`)
	require.NoError(t, err)

	assert.Equal(t, "dana@example.com", result.output["to"])
	assert.Equal(t, "mock", result.output["delivery"])
}

func TestAction_UpdateFields_WritesBackToContext(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_stage": "negotiation"})

	result, err := runAction(t, e,
		`{"actionType":"update-fields","fields":{"priority":"high","stage_note":"was {{deal_stage}}"}}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"priority", "stage_note"}, result.output["updated_fields"])

	ctxData := e.contextCopy()
	assert.Equal(t, "high", ctxData["priority"])
	assert.Equal(t, "was negotiation", ctxData["stage_note"])
}

func TestAction_AddNote(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_name": "Acme"})

	result, err := runAction(t, e, `{"actionType":"add-note","note":"Called {{deal_name}}"}`)
	require.NoError(t, err)
	assert.Equal(t, "Called Acme", result.output["note"])
}

func TestAction_SendWebhook(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_id": "deal-9"})

	result, err := runAction(t, e,
		`{"actionType":"send-webhook","url":"https://example.com/hook","payload":{"id":"{{deal_id}}"}}`)
	require.NoError(t, err)

	assert.Equal(t, "POST", result.output["method"])
	payload, ok := result.output["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deal-9", payload["id"])
}

func TestAction_UnknownType(t *testing.T) {
	e := actionEngine(t, nil)

	_, err := runAction(t, e, `{"actionType":"teleport"}`)
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExecution, flowErr.Code)
}
