package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mellora/flowsim/pkg/schema"
)

// rawOperators in match order. Longer operators first so ">=" is not read
// as ">".
var rawOperators = []string{"===", "!==", ">=", "<=", "==", "!=", ">", "<"}

// execCondition evaluates a binary condition node. Successors are selected
// by edge handle ("true"/"false") when handles are present; otherwise all
// successors are taken when the predicate holds and none when it does not.
// The not-taken side is handed to the driver for skip propagation.
func (e *Engine) execCondition(ctx context.Context, node *schema.Node) (*execResult, error) {
	var cfg schema.ConditionConfig
	if len(node.Data) > 0 {
		if err := json.Unmarshal(node.Data, &cfg); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid condition config").WithNode(node.ID).WithCause(err)
		}
	}

	data := e.contextCopy()
	outcome, desc := e.evaluatePredicate(ctx, cfg.Predicate, data)
	met := outcome.Met()

	metVal := met
	e.appendLog(schema.LogEntry{
		NodeID:    node.ID,
		NodeLabel: node.Label(),
		Kind:      schema.LogCondition,
		Message:   desc,
		Success:   &metVal,
	})

	var next, skipRoots []string
	if e.hasHandleTaggedEdges(node.ID) {
		if met {
			next = e.successorsByHandle(node.ID, "true")
			skipRoots = e.successorsByHandle(node.ID, "false")
		} else {
			next = e.successorsByHandle(node.ID, "false")
			skipRoots = e.successorsByHandle(node.ID, "true")
		}
	} else {
		if met {
			next = e.successorsOf(node.ID)
		} else {
			skipRoots = e.successorsOf(node.ID)
		}
	}

	return &execResult{
		output: map[string]any{
			"condition_met": met,
			"outcome":       string(outcome),
		},
		next:      next,
		skipRoots: skipRoots,
	}, nil
}

// execBranch evaluates a multi-way branch node. Branch predicates are
// independent and non-exclusive; the next-node set is the union of all
// matched branches' handle-resolved successors, in branch order.
func (e *Engine) execBranch(ctx context.Context, node *schema.Node) (*execResult, error) {
	var cfg schema.BranchConfig
	if len(node.Data) > 0 {
		if err := json.Unmarshal(node.Data, &cfg); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid branch config").WithNode(node.ID).WithCause(err)
		}
	}

	data := e.contextCopy()
	var matched []string
	var next, skipRoots []string
	inNext := make(map[string]struct{})

	for _, rule := range cfg.Branches {
		outcome, desc := e.evaluatePredicate(ctx, rule.Predicate, data)
		met := outcome.Met()

		label := rule.Label
		if label == "" {
			label = rule.ID
		}
		metVal := met
		e.appendLog(schema.LogEntry{
			NodeID:    node.ID,
			NodeLabel: node.Label(),
			Kind:      schema.LogCondition,
			Message:   fmt.Sprintf("branch %s: %s", label, desc),
			Success:   &metVal,
		})

		targets := e.successorsByHandle(node.ID, rule.ID)
		if met {
			matched = append(matched, rule.ID)
			for _, t := range targets {
				if _, ok := inNext[t]; ok {
					continue
				}
				inNext[t] = struct{}{}
				next = append(next, t)
			}
		} else {
			skipRoots = append(skipRoots, targets...)
		}
	}

	return &execResult{
		output: map[string]any{
			"matched_branches": matched,
		},
		next:      next,
		skipRoots: skipRoots,
	}, nil
}

// evaluatePredicate resolves a predicate against the shared context. It
// returns the outcome plus a human-readable description for the trace, e.g.
// "deal_value > 50000 = true". Unrecognized shapes come back unevaluated
// rather than silently passing.
func (e *Engine) evaluatePredicate(ctx context.Context, p schema.Predicate, data map[string]any) (schema.ConditionOutcome, string) {
	if p.Condition != "" {
		return e.evaluateRaw(ctx, p.Condition, data)
	}
	if p.ConditionType != "" {
		return evaluateStructured(p, data)
	}
	return schema.OutcomeUnevaluated, "no condition configured = unevaluated"
}

// evaluateRaw handles the "<field> <op> <value>" comparison string form,
// falling back to a full expression evaluation for anything that does not
// match that shape.
func (e *Engine) evaluateRaw(ctx context.Context, raw string, data map[string]any) (schema.ConditionOutcome, string) {
	field, op, literal, ok := parseRawComparison(raw)
	if !ok {
		// Not the simple comparison shape; try it as a full expression.
		result, err := e.exprEng.Evaluate(ctx, raw, data)
		if err == nil {
			if b, isBool := result.(bool); isBool {
				return boolOutcome(b), fmt.Sprintf("%s = %t", raw, b)
			}
		}
		return schema.OutcomeUnevaluated, fmt.Sprintf("%s = unevaluated", raw)
	}

	value, present := data[field]

	switch op {
	case ">", "<", ">=", "<=":
		want, werr := strconv.ParseFloat(literal, 64)
		have, ok := toNumber(value)
		if werr != nil {
			return schema.OutcomeUnevaluated, fmt.Sprintf("%s = unevaluated", raw)
		}
		if !present || !ok {
			// Recognized shape, missing or non-numeric data: false, not
			// unevaluated.
			return schema.OutcomeFalse, fmt.Sprintf("%s = false", raw)
		}
		var met bool
		switch op {
		case ">":
			met = have > want
		case "<":
			met = have < want
		case ">=":
			met = have >= want
		case "<=":
			met = have <= want
		}
		return boolOutcome(met), fmt.Sprintf("%s = %t", raw, met)

	default: // ==, ===, !=, !==
		expected := strings.Trim(literal, `"'`)
		equal := looseEqual(value, expected)
		met := equal
		if op == "!=" || op == "!==" {
			met = !equal
		}
		return boolOutcome(met), fmt.Sprintf("%s = %t", raw, met)
	}
}

// parseRawComparison splits "field op value". Operators must be
// space-delimited and both operands must be single tokens (a quoted literal
// counts as one token); anything else is handed to the expression engine.
func parseRawComparison(raw string) (field, op, value string, ok bool) {
	for _, candidate := range rawOperators {
		idx := strings.Index(raw, " "+candidate+" ")
		if idx < 0 {
			continue
		}
		field = strings.TrimSpace(raw[:idx])
		value = strings.TrimSpace(raw[idx+len(candidate)+2:])
		if !isSimpleToken(field) || !isSimpleToken(value) {
			continue
		}
		return field, candidate, value, true
	}
	return "", "", "", false
}

// isSimpleToken reports whether s is a bare word/number or a fully quoted
// literal.
func isSimpleToken(s string) bool {
	if s == "" {
		return false
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return true
		}
	}
	return !strings.ContainsAny(s, " \t")
}

// evaluateStructured handles the conditionType-tagged predicate forms.
func evaluateStructured(p schema.Predicate, data map[string]any) (schema.ConditionOutcome, string) {
	switch p.ConditionType {
	case schema.PredicateValueThreshold:
		field := p.Field
		if field == "" {
			field = "deal_value"
		}
		threshold, ok := thresholdOf(p)
		if !ok {
			return schema.OutcomeUnevaluated, fmt.Sprintf("%s > ? = unevaluated (no threshold)", field)
		}
		have, numeric := toNumber(data[field])
		met := numeric && have > threshold
		return boolOutcome(met), fmt.Sprintf("%s > %s = %t", field, formatNumber(threshold), met)

	case schema.PredicateStageEquals:
		field := p.Field
		if field == "" {
			field = "deal_stage"
		}
		met := stringOf(data[field]) == p.Stage
		return boolOutcome(met), fmt.Sprintf("%s == %s = %t", field, p.Stage, met)

	case schema.PredicateCategoryEquals:
		field := p.Field
		if field == "" {
			field = "category"
		}
		met := stringOf(data[field]) == p.Category
		return boolOutcome(met), fmt.Sprintf("%s == %s = %t", field, p.Category, met)

	case schema.PredicateFieldCompare:
		return evaluateFieldCompare(p, data)

	default:
		return schema.OutcomeUnevaluated, fmt.Sprintf("conditionType %s = unevaluated", p.ConditionType)
	}
}

// evaluateFieldCompare handles the generic field/operator/value form.
func evaluateFieldCompare(p schema.Predicate, data map[string]any) (schema.ConditionOutcome, string) {
	value, present := data[p.Field]
	have := stringOf(value)
	want := stringOf(p.Value)

	var met bool
	switch p.Operator {
	case "equals":
		met = looseEqual(value, want)
	case "not_equals":
		met = !looseEqual(value, want)
	case "contains":
		met = want != "" && strings.Contains(have, want)
	case "is_empty":
		met = !present || have == ""
		return boolOutcome(met), fmt.Sprintf("%s is_empty = %t", p.Field, met)
	case "is_not_empty":
		met = present && have != ""
		return boolOutcome(met), fmt.Sprintf("%s is_not_empty = %t", p.Field, met)
	default:
		return schema.OutcomeUnevaluated, fmt.Sprintf("%s %s %s = unevaluated", p.Field, p.Operator, want)
	}
	return boolOutcome(met), fmt.Sprintf("%s %s %s = %t", p.Field, p.Operator, want, met)
}

func boolOutcome(b bool) schema.ConditionOutcome {
	if b {
		return schema.OutcomeTrue
	}
	return schema.OutcomeFalse
}

// thresholdOf reads the threshold from Threshold or, failing that, Value.
func thresholdOf(p schema.Predicate) (float64, bool) {
	if p.Threshold != nil {
		return *p.Threshold, true
	}
	return toNumber(p.Value)
}

// looseEqual compares a context value against an expected literal:
// numerically when both sides parse as numbers, by string otherwise.
func looseEqual(value any, expected string) bool {
	if have, ok := toNumber(value); ok {
		if want, err := strconv.ParseFloat(expected, 64); err == nil {
			return have == want
		}
	}
	return stringOf(value) == expected
}

// toNumber coerces JSON-decoded scalar values to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return formatNumber(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// formatNumber renders floats without a trailing ".0" for whole values.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
