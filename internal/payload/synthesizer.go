package payload

import "github.com/mellora/flowsim/pkg/schema"

// Scenario binds a human-facing name to a trigger category and the
// scenario tag that shapes the synthesized payload.
type Scenario struct {
	Name        string                 `json:"name"`
	Category    schema.TriggerCategory `json:"category"`
	Tag         string                 `json:"tag"`
	Description string                 `json:"description"`
}

// Scenario tags understood by the synthesizer. A tag the synthesizer does
// not recognize falls back to the category baseline.
const (
	TagHighValue   = "high_value"
	TagLowValue    = "low_value"
	TagStale       = "stale"
	TagUrgent      = "urgent"
	TagEnterprise  = "enterprise"
	TagInboundLead = "inbound_lead"
)

// scenarios is the static registry consumed by the control surface. Order
// matters: it is the order presented to users.
var scenarios = []Scenario{
	{
		Name:        "high-value-deal",
		Category:    schema.TriggerDealStage,
		Tag:         TagHighValue,
		Description: "A six-figure deal advances to negotiation",
	},
	{
		Name:        "low-value-deal",
		Category:    schema.TriggerDealStage,
		Tag:         TagLowValue,
		Description: "A small deal advances to negotiation",
	},
	{
		Name:        "stale-deal",
		Category:    schema.TriggerDealStage,
		Tag:         TagStale,
		Description: "A deal with no recent activity",
	},
	{
		Name:        "new-deal",
		Category:    schema.TriggerDealCreated,
		Tag:         "",
		Description: "A freshly created deal enters the pipeline",
	},
	{
		Name:        "enterprise-deal",
		Category:    schema.TriggerDealCreated,
		Tag:         TagEnterprise,
		Description: "A large enterprise deal is created",
	},
	{
		Name:        "new-contact",
		Category:    schema.TriggerContactNew,
		Tag:         "",
		Description: "A contact is added from a trade show list",
	},
	{
		Name:        "inbound-lead",
		Category:    schema.TriggerContactNew,
		Tag:         TagInboundLead,
		Description: "A contact comes in through the website",
	},
	{
		Name:        "urgent-overdue-task",
		Category:    schema.TriggerTaskDue,
		Tag:         TagUrgent,
		Description: "A high-priority task is past its due date",
	},
	{
		Name:        "task-due-today",
		Category:    schema.TriggerTaskDue,
		Tag:         "",
		Description: "A follow-up task comes due",
	},
	{
		Name:        "demo-request-form",
		Category:    schema.TriggerFormSubmit,
		Tag:         "",
		Description: "A prospect submits the demo request form",
	},
	{
		Name:        "inbound-webhook",
		Category:    schema.TriggerWebhook,
		Tag:         "",
		Description: "An external system posts a payment event",
	},
}

// Scenarios returns the registry in presentation order.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

// ScenarioByName looks up a registered scenario.
func ScenarioByName(name string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Synthesize produces the deterministic synthetic payload for a trigger
// category, shaped by an optional scenario tag. The same inputs always
// produce the same payload so runs are reproducible.
func Synthesize(category schema.TriggerCategory, tag string) map[string]any {
	switch category {
	case schema.TriggerDealStage:
		return dealStagePayload(tag)
	case schema.TriggerDealCreated:
		return dealCreatedPayload(tag)
	case schema.TriggerContactNew:
		return contactPayload(tag)
	case schema.TriggerTaskDue:
		return taskPayload(tag)
	case schema.TriggerFormSubmit:
		return formPayload()
	case schema.TriggerWebhook:
		return webhookPayload()
	default:
		return dealStagePayload(tag)
	}
}

func dealStagePayload(tag string) map[string]any {
	p := map[string]any{
		"deal_id":        "deal-3021",
		"deal_name":      "Meridian Logistics Renewal",
		"deal_value":     float64(48000),
		"deal_stage":     "negotiation",
		"previous_stage": "proposal",
		"owner":          "Sam Ortiz",
		"company":        "Meridian Logistics",
		"days_in_stage":  float64(4),
	}
	switch tag {
	case TagHighValue:
		p["deal_id"] = "deal-3022"
		p["deal_name"] = "Northwind Platform Expansion"
		p["deal_value"] = float64(150000)
		p["company"] = "Northwind Traders"
	case TagLowValue:
		p["deal_id"] = "deal-3023"
		p["deal_name"] = "Starter Plan Upgrade"
		p["deal_value"] = float64(2400)
		p["company"] = "Bluebird Studio"
	case TagStale:
		p["deal_id"] = "deal-3024"
		p["deal_name"] = "Harbor Freight Pilot"
		p["deal_stage"] = "proposal"
		p["previous_stage"] = "qualification"
		p["days_in_stage"] = float64(31)
	}
	return p
}

func dealCreatedPayload(tag string) map[string]any {
	p := map[string]any{
		"deal_id":    "deal-4101",
		"deal_name":  "Cascade Analytics Trial",
		"deal_value": float64(18000),
		"deal_stage": "qualification",
		"owner":      "Priya Nair",
		"company":    "Cascade Analytics",
		"source":     "outbound",
	}
	if tag == TagEnterprise {
		p["deal_id"] = "deal-4102"
		p["deal_name"] = "Atlas Group Enterprise Rollout"
		p["deal_value"] = float64(420000)
		p["company"] = "Atlas Group"
		p["source"] = "partner_referral"
	}
	return p
}

func contactPayload(tag string) map[string]any {
	p := map[string]any{
		"contact_id":    "contact-9710",
		"contact_name":  "Dana Whitfield",
		"contact_email": "dana.whitfield@meridianlog.com",
		"company":       "Meridian Logistics",
		"title":         "VP Operations",
		"source":        "trade_show",
	}
	if tag == TagInboundLead {
		p["contact_id"] = "contact-9711"
		p["contact_name"] = "Luis Romero"
		p["contact_email"] = "luis@bluebirdstudio.io"
		p["company"] = "Bluebird Studio"
		p["title"] = "Founder"
		p["source"] = "website"
	}
	return p
}

func taskPayload(tag string) map[string]any {
	p := map[string]any{
		"task_id":      "task-5530",
		"task_title":   "Follow up on proposal",
		"due_date":     "2025-06-12",
		"assignee":     "Sam Ortiz",
		"priority":     "medium",
		"days_overdue": float64(0),
		"related_deal": "deal-3021",
	}
	if tag == TagUrgent {
		p["task_id"] = "task-5531"
		p["task_title"] = "Send signed contract to legal"
		p["due_date"] = "2025-06-05"
		p["priority"] = "urgent"
		p["days_overdue"] = float64(3)
	}
	return p
}

func formPayload() map[string]any {
	return map[string]any{
		"form_id":       "form-demo-request",
		"form_name":     "Request a Demo",
		"submitted_at":  "2025-06-10T14:32:00Z",
		"contact_email": "dana.whitfield@meridianlog.com",
		"fields": map[string]any{
			"company_size": "200-500",
			"interest":     "automation",
			"message":      "We want to automate our deal desk handoffs.",
		},
	}
}

func webhookPayload() map[string]any {
	return map[string]any{
		"event":       "invoice.paid",
		"source":      "billing",
		"received_at": "2025-06-10T14:35:00Z",
		"body": map[string]any{
			"invoice_id": "inv-20443",
			"amount":     float64(4800),
			"currency":   "USD",
		},
	}
}
