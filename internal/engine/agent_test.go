package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellora/flowsim/pkg/schema"
)

func runAgent(t *testing.T, e *Engine, data string) *execResult {
	t.Helper()
	n := node("agent", schema.NodeAgent, data)
	result, err := e.execAgent(context.Background(), &n)
	require.NoError(t, err)
	return result
}

func TestAgent_TextMode(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_name": "Acme Renewal"})

	result := runAgent(t, e, `{"label":"Analyze","prompt":"Summarize the deal"}`)

	assert.Equal(t, schema.AgentOutputText, result.output["output_mode"])
	response, ok := result.output["response"].(string)
	require.True(t, ok)
	assert.Contains(t, response, "Acme Renewal")
	assert.Contains(t, response, "Summarize the deal")
}

func TestAgent_TextMode_IsDefault(t *testing.T) {
	e := actionEngine(t, nil)

	result := runAgent(t, e, `{"label":"Analyze"}`)
	assert.Equal(t, schema.AgentOutputText, result.output["output_mode"])
}

func TestAgent_StructuredMode(t *testing.T) {
	e := actionEngine(t, map[string]any{"deal_value": float64(150000)})

	result := runAgent(t, e,
		`{"outputMode":"structured","outputFields":["deal_value","risk_level"]}`)

	response, ok := result.output["response"].(map[string]any)
	require.True(t, ok)
	// Fields present in context are echoed; missing ones are synthesized.
	assert.Equal(t, float64(150000), response["deal_value"])
	assert.Equal(t, "generated-risk_level", response["risk_level"])
}

func TestAgent_ToolCallMode(t *testing.T) {
	e := actionEngine(t, nil)

	result := runAgent(t, e,
		`{"outputMode":"tool_call","tools":["create_task","send_email"],"prompt":"do it"}`)

	response, ok := result.output["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "create_task", response["tool"])
}

func TestAgent_UnknownModeFails(t *testing.T) {
	e := actionEngine(t, nil)

	n := node("agent", schema.NodeAgent, `{"outputMode":"telepathy"}`)
	_, err := e.execAgent(context.Background(), &n)
	require.Error(t, err)
}

func TestAgent_ExtractionRules(t *testing.T) {
	e := actionEngine(t, map[string]any{
		"deal_value": float64(150000),
		"deal_name":  "Acme Renewal",
		"contact":    map[string]any{"email": "dana@example.com"},
	})

	result := runAgent(t, e, `{"extractionRules":[
		{"field":"value","type":"value","source":"deal_value"},
		{"field":"email","type":"jq","source":".contact.email"},
		{"field":"summary","type":"template","source":"Deal: {{deal_name}}"},
		{"field":"missing","type":"value","source":"nope","default":"fallback"},
		{"field":"bad_jq","type":"jq","source":".[broken","default":"jq-fallback"}
	]}`)

	extracted, ok := result.output["extracted"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(150000), extracted["value"])
	assert.Equal(t, "dana@example.com", extracted["email"])
	assert.Equal(t, "Deal: Acme Renewal", extracted["summary"])
	assert.Equal(t, "fallback", extracted["missing"])
	assert.Equal(t, "jq-fallback", extracted["bad_jq"])

	// Extracted fields are written back to the shared context.
	ctxData := e.contextCopy()
	assert.Equal(t, "Deal: Acme Renewal", ctxData["summary"])
}

func TestAgent_ExtractionUnknownTypeUsesDefault(t *testing.T) {
	e := actionEngine(t, nil)

	result := runAgent(t, e, `{"extractionRules":[
		{"field":"x","type":"psychic","default":"dunno"}
	]}`)

	extracted := result.output["extracted"].(map[string]any)
	assert.Equal(t, "dunno", extracted["x"])
}
