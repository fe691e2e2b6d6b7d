package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellora/flowsim/pkg/schema"
)

func TestValidator_ValidObject(t *testing.T) {
	v := NewValidator()

	result := v.Validate([]byte(`{"deal_value": 150000}`))
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
}

func TestValidator_SyntaxErrors(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		raw      string
		wantCode string
		wantLine int
	}{
		{
			name:     "empty payload",
			raw:      "",
			wantCode: "empty_payload",
			wantLine: 1,
		},
		{
			name:     "whitespace only",
			raw:      "   \n  ",
			wantCode: "empty_payload",
			wantLine: 1,
		},
		{
			name:     "not json",
			raw:      "this is not json",
			wantCode: "invalid_json",
			wantLine: 1,
		},
		{
			name:     "trailing comma on later line",
			raw:      "{\n  \"a\": 1,\n  \"b\": 2,\n}",
			wantCode: "invalid_json",
			wantLine: 4,
		},
		{
			name:     "top-level array",
			raw:      `[1, 2, 3]`,
			wantCode: "not_an_object",
			wantLine: 1,
		},
		{
			name:     "top-level string",
			raw:      `"hello"`,
			wantCode: "not_an_object",
			wantLine: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate([]byte(tt.raw))
			require.False(t, result.Valid())
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.wantCode, result.Errors[0].Code)
			assert.Equal(t, tt.wantLine, result.Errors[0].Line)
		})
	}
}

func TestValidator_EmptyObjectWarns(t *testing.T) {
	v := NewValidator()

	result := v.Validate([]byte(`{}`))
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "empty_object", result.Warnings[0].Code)
}

func TestValidator_ValidateFor_Passes(t *testing.T) {
	v := NewValidator()

	raw := []byte(`{
  "deal_id": "deal-1",
  "deal_name": "Acme Renewal",
  "deal_value": 92000,
  "deal_stage": "negotiation"
}`)
	result := v.ValidateFor(schema.TriggerDealStage, raw)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestValidator_ValidateFor_MissingRequired(t *testing.T) {
	v := NewValidator()

	result := v.ValidateFor(schema.TriggerDealStage, []byte(`{"deal_id": "deal-1"}`))
	require.False(t, result.Valid())

	for _, issue := range result.Errors {
		assert.Equal(t, "schema_violation", issue.Code)
	}
}

func TestValidator_ValidateFor_WrongType(t *testing.T) {
	v := NewValidator()

	raw := []byte(`{
  "deal_id": "deal-1",
  "deal_name": "Acme Renewal",
  "deal_value": "a lot",
  "deal_stage": "negotiation"
}`)
	result := v.ValidateFor(schema.TriggerDealStage, raw)
	require.False(t, result.Valid())

	// The offending field is on line 4 of the raw text.
	found := false
	for _, issue := range result.Errors {
		if issue.Line == 4 {
			found = true
		}
	}
	assert.True(t, found, "expected an error annotated at line 4, got %+v", result.Errors)
}

func TestValidator_ValidateFor_UnknownFieldWarns(t *testing.T) {
	v := NewValidator()

	raw := []byte(`{
  "deal_id": "deal-1",
  "deal_name": "Acme Renewal",
  "deal_value": 92000,
  "deal_stage": "negotiation",
  "deal_vlaue": 1
}`)
	result := v.ValidateFor(schema.TriggerDealStage, raw)
	assert.True(t, result.Valid())

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "unknown_field", result.Warnings[0].Code)
	assert.Equal(t, 6, result.Warnings[0].Line)
	assert.Contains(t, result.Warnings[0].Message, "deal_vlaue")
}

func TestValidator_ValidateFor_UnknownCategory(t *testing.T) {
	v := NewValidator()

	result := v.ValidateFor("made_up", []byte(`{"a": 1}`))
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "unknown_category", result.Warnings[0].Code)
}

func TestValidator_SynthesizedPayloadsPassTheirSchemas(t *testing.T) {
	v := NewValidator()

	for _, s := range Scenarios() {
		t.Run(s.Name, func(t *testing.T) {
			raw := mustJSON(t, Synthesize(s.Category, s.Tag))
			result := v.ValidateFor(s.Category, raw)
			assert.True(t, result.Valid(), "errors: %+v", result.Errors)
			assert.Empty(t, result.Warnings)
		})
	}
}
