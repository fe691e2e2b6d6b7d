package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mellora/flowsim/internal/expressions"
	"github.com/mellora/flowsim/pkg/schema"
)

// execAgent synthesizes a plausible model response shaped by the node's
// output mode. No real model is ever called. Extraction rules run against
// the shared context and their results are written back for downstream
// nodes.
func (e *Engine) execAgent(ctx context.Context, node *schema.Node) (*execResult, error) {
	var cfg schema.AgentConfig
	if len(node.Data) > 0 {
		if err := json.Unmarshal(node.Data, &cfg); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid agent config").WithNode(node.ID).WithCause(err)
		}
	}

	data := e.contextCopy()
	prompt := expressions.Interpolate(cfg.Prompt, data)

	mode := cfg.OutputMode
	if mode == "" {
		mode = schema.AgentOutputText
	}

	output := map[string]any{"output_mode": mode}
	switch mode {
	case schema.AgentOutputText:
		output["response"] = synthesizeText(prompt, data)

	case schema.AgentOutputStructured:
		structured := make(map[string]any, len(cfg.OutputFields))
		for _, field := range cfg.OutputFields {
			if v, ok := data[field]; ok {
				structured[field] = v
			} else {
				structured[field] = "generated-" + field
			}
		}
		output["response"] = structured

	case schema.AgentOutputToolCall:
		tool := "noop"
		if len(cfg.Tools) > 0 {
			tool = cfg.Tools[0]
		}
		output["response"] = map[string]any{
			"tool":      tool,
			"arguments": map[string]any{"prompt": prompt},
		}

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown agent output mode: %s", mode).WithNode(node.ID)
	}

	if len(cfg.ExtractionRules) > 0 {
		extracted := e.runExtractionRules(ctx, cfg.ExtractionRules, data)
		output["extracted"] = extracted
		if err := e.mergeContext(extracted); err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "write extracted fields").WithNode(node.ID).WithCause(err)
		}
	}

	return &execResult{
		output: output,
		next:   e.successorsOf(node.ID),
	}, nil
}

// runExtractionRules synthesizes one value per rule. A rule that cannot be
// resolved falls back to its declared default; extraction never fails the
// node.
func (e *Engine) runExtractionRules(ctx context.Context, rules []schema.ExtractionRule, data map[string]any) map[string]any {
	extracted := make(map[string]any, len(rules))
	for _, rule := range rules {
		if rule.Field == "" {
			continue
		}
		switch rule.Type {
		case schema.ExtractValue:
			if v, ok := data[rule.Source]; ok {
				extracted[rule.Field] = v
			} else {
				extracted[rule.Field] = rule.Default
			}

		case schema.ExtractJQ:
			v, err := e.jqEng.Evaluate(ctx, rule.Source, data)
			if err != nil || v == nil {
				extracted[rule.Field] = rule.Default
			} else {
				extracted[rule.Field] = v
			}

		case schema.ExtractTemplate:
			extracted[rule.Field] = expressions.Interpolate(rule.Source, data)

		default:
			extracted[rule.Field] = rule.Default
		}
	}
	return extracted
}

// synthesizeText builds a short deterministic response referencing whatever
// familiar fields the context carries.
func synthesizeText(prompt string, data map[string]any) string {
	subject := ""
	for _, key := range []string{"deal_name", "contact_name", "task_title", "form_name", "event"} {
		if v, ok := data[key]; ok {
			subject = stringOf(v)
			break
		}
	}

	switch {
	case prompt != "" && subject != "":
		return fmt.Sprintf("Considering %q: regarding %s, the requested analysis is complete and no blockers were identified.", prompt, subject)
	case subject != "":
		return fmt.Sprintf("Regarding %s, the requested analysis is complete and no blockers were identified.", subject)
	case prompt != "":
		return fmt.Sprintf("Considering %q: the requested analysis is complete.", prompt)
	default:
		return "The requested analysis is complete."
	}
}
