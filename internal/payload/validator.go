package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mellora/flowsim/pkg/schema"
)

// payloadSchemas holds a JSON Schema per trigger category. Embedded as
// constants to avoid filesystem dependencies. The schemas describe the
// fields the synthesizer emits; extra fields are allowed but surfaced
// as warnings so authors notice typos.
var payloadSchemas = map[schema.TriggerCategory]string{
	schema.TriggerDealStage: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["deal_id", "deal_name", "deal_value", "deal_stage"],
  "properties": {
    "deal_id":        { "type": "string", "minLength": 1 },
    "deal_name":      { "type": "string", "minLength": 1 },
    "deal_value":     { "type": "number", "minimum": 0 },
    "deal_stage":     { "type": "string" },
    "previous_stage": { "type": "string" },
    "owner":          { "type": "string" },
    "company":        { "type": "string" },
    "days_in_stage":  { "type": "number", "minimum": 0 }
  }
}`,
	schema.TriggerDealCreated: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["deal_id", "deal_name", "deal_value"],
  "properties": {
    "deal_id":    { "type": "string", "minLength": 1 },
    "deal_name":  { "type": "string", "minLength": 1 },
    "deal_value": { "type": "number", "minimum": 0 },
    "deal_stage": { "type": "string" },
    "owner":      { "type": "string" },
    "company":    { "type": "string" },
    "source":     { "type": "string" }
  }
}`,
	schema.TriggerContactNew: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["contact_id", "contact_name", "contact_email"],
  "properties": {
    "contact_id":    { "type": "string", "minLength": 1 },
    "contact_name":  { "type": "string", "minLength": 1 },
    "contact_email": { "type": "string", "format": "email" },
    "company":       { "type": "string" },
    "title":         { "type": "string" },
    "source":        { "type": "string" }
  }
}`,
	schema.TriggerTaskDue: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_id", "task_title", "due_date"],
  "properties": {
    "task_id":      { "type": "string", "minLength": 1 },
    "task_title":   { "type": "string", "minLength": 1 },
    "due_date":     { "type": "string" },
    "assignee":     { "type": "string" },
    "priority":     { "type": "string", "enum": ["low", "medium", "high", "urgent"] },
    "days_overdue": { "type": "number" },
    "related_deal": { "type": "string" }
  }
}`,
	schema.TriggerFormSubmit: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["form_id", "submitted_at"],
  "properties": {
    "form_id":       { "type": "string", "minLength": 1 },
    "form_name":     { "type": "string" },
    "submitted_at":  { "type": "string" },
    "contact_email": { "type": "string", "format": "email" },
    "fields":        { "type": "object" }
  }
}`,
	schema.TriggerWebhook: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event"],
  "properties": {
    "event":       { "type": "string", "minLength": 1 },
    "source":      { "type": "string" },
    "received_at": { "type": "string" },
    "body":        { "type": "object" }
  }
}`,
}

// Validator checks a raw payload in two stages: JSON syntax with
// line-annotated diagnostics, then structural validation against the
// trigger category's schema. It is safe for concurrent use.
type Validator struct {
	mu    sync.RWMutex
	cache map[schema.TriggerCategory]*jsonschema.Schema
}

// NewValidator creates a Validator. Category schemas are compiled lazily
// on first use.
func NewValidator() *Validator {
	return &Validator{cache: make(map[schema.TriggerCategory]*jsonschema.Schema)}
}

// Validate performs the syntax stage only: the payload must be parseable
// JSON and its top-level value must be an object. Syntax errors carry the
// 1-based line derived from the decoder's byte offset.
func (v *Validator) Validate(raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	v.checkSyntax(raw, result)
	return result
}

// ValidateFor runs both stages: syntax, then the JSON Schema for the given
// trigger category. Unknown extra fields produce warnings, not errors. An
// unrecognized category skips the structural stage with a warning.
func (v *Validator) ValidateFor(category schema.TriggerCategory, raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	doc := v.checkSyntax(raw, result)
	if !result.Valid() || doc == nil {
		return result
	}

	compiled, known := v.schemaFor(category)
	if !known {
		result.AddWarning(0, "", "unknown_category",
			fmt.Sprintf("no payload schema for trigger category %q, structural checks skipped", category))
		return result
	}

	jsonDoc, err := reparseForSchema(raw)
	if err != nil {
		result.AddError(0, "", "invalid_payload", err.Error())
		return result
	}

	if err := compiled.Validate(jsonDoc); err != nil {
		v.collectSchemaErrors(raw, err, result)
	}

	v.warnUnknownFields(category, raw, doc, result)
	return result
}

// checkSyntax parses raw and records syntax problems. Returns the decoded
// top-level object when parsing succeeded, nil otherwise.
func (v *Validator) checkSyntax(raw []byte, result *schema.ValidationResult) map[string]any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		result.AddError(1, "", "empty_payload", "payload is empty")
		return nil
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		line := 1
		if serr, ok := err.(*json.SyntaxError); ok {
			line = lineAtOffset(raw, serr.Offset)
		}
		result.AddError(line, "", "invalid_json", fmt.Sprintf("invalid JSON: %v", err))
		return nil
	}

	obj, ok := value.(map[string]any)
	if !ok {
		result.AddError(1, "", "not_an_object",
			fmt.Sprintf("payload must be a JSON object, got %s", jsonTypeName(value)))
		return nil
	}

	if len(obj) == 0 {
		result.AddWarning(1, "", "empty_object", "payload object has no fields")
	}
	return obj
}

// schemaFor returns the compiled schema for a category, compiling and
// caching it on first use.
func (v *Validator) schemaFor(category schema.TriggerCategory) (*jsonschema.Schema, bool) {
	src, ok := payloadSchemas[category]
	if !ok {
		return nil, false
	}

	v.mu.RLock()
	if cached, ok := v.cache[category]; ok {
		v.mu.RUnlock()
		return cached, true
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[category]; ok {
		return cached, true
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()

	url := fmt.Sprintf("flowsim://payload-schema/%s", category)
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		// Embedded schemas are constants; an unmarshal failure is a bug.
		panic(fmt.Sprintf("payload schema for %s: %v", category, err))
	}
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("payload schema for %s: %v", category, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("payload schema for %s: %v", category, err))
	}

	v.cache[category] = compiled
	return compiled, true
}

// collectSchemaErrors flattens a jsonschema validation error tree into
// line-annotated issues. Lines are approximated by locating the offending
// property name in the raw text.
func (v *Validator) collectSchemaErrors(raw []byte, err error, result *schema.ValidationResult) {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.AddError(1, "", "schema_violation", err.Error())
		return
	}

	for _, leaf := range flattenViolations(verr) {
		path := "/" + strings.Join(leaf.InstanceLocation, "/")
		line := 1
		if len(leaf.InstanceLocation) > 0 {
			line = lineOfField(raw, leaf.InstanceLocation[len(leaf.InstanceLocation)-1])
		}
		result.AddError(line, path, "schema_violation", leaf.Error())
	}
}

// warnUnknownFields flags top-level keys the category schema does not
// describe. These are allowed (the shared context accepts anything) but
// usually indicate a typo in an authored payload.
func (v *Validator) warnUnknownFields(category schema.TriggerCategory, raw []byte, obj map[string]any, result *schema.ValidationResult) {
	known := knownFields(category)
	if known == nil {
		return
	}
	for key := range obj {
		if _, ok := known[key]; !ok {
			result.AddWarning(lineOfField(raw, key), "/"+key, "unknown_field",
				fmt.Sprintf("field %q is not part of the %s payload shape", key, category))
		}
	}
}

// knownFields extracts the property names from a category's embedded schema.
func knownFields(category schema.TriggerCategory) map[string]struct{} {
	src, ok := payloadSchemas[category]
	if !ok {
		return nil
	}
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil
	}
	fields := make(map[string]struct{}, len(doc.Properties))
	for name := range doc.Properties {
		fields[name] = struct{}{}
	}
	return fields
}

// flattenViolations walks a ValidationError tree and returns the leaves.
func flattenViolations(verr *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(verr.Causes) == 0 {
		return []*jsonschema.ValidationError{verr}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range verr.Causes {
		leaves = append(leaves, flattenViolations(cause)...)
	}
	return leaves
}

// reparseForSchema round-trips the payload so numbers become json.Number,
// which the jsonschema library requires.
func reparseForSchema(raw []byte) (any, error) {
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// lineAtOffset converts a byte offset from the JSON decoder into a 1-based
// line number.
func lineAtOffset(raw []byte, offset int64) int {
	if offset < 0 {
		return 1
	}
	if offset > int64(len(raw)) {
		offset = int64(len(raw))
	}
	return 1 + bytes.Count(raw[:offset], []byte("\n"))
}

// lineOfField locates the first occurrence of a quoted field name in the
// raw payload and returns its 1-based line, falling back to 1.
func lineOfField(raw []byte, field string) int {
	idx := bytes.Index(raw, []byte(`"`+field+`"`))
	if idx < 0 {
		return 1
	}
	return 1 + bytes.Count(raw[:idx], []byte("\n"))
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
