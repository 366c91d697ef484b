// Package alert posts held and denied decisions to operator webhooks.
package alert

import (
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/redact"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // modes or risk flags: ["deny", "hold", "CONSTITUTIONAL_VIOLATION"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp        string            `json:"timestamp"`
	EventID          string            `json:"event_id"`
	Actor            string            `json:"actor"`
	ActorType        string            `json:"actor_type"`
	Action           string            `json:"action"`
	Target           string            `json:"target"`
	Mode             string            `json:"mode"`
	Reason           string            `json:"reason"`
	RiskFlags        []string          `json:"risk_flags,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	ConstitutionHash string            `json:"constitution_hash"`
}

// FromAudit flattens an audit event into an alert payload. Secrets in the
// request context are masked.
func FromAudit(e model.AuditEvent) AlertEvent {
	return AlertEvent{
		Timestamp:        e.TimestampUTC,
		EventID:          e.ID,
		Actor:            e.ActorName,
		ActorType:        string(e.ActorType),
		Action:           string(e.Action),
		Target:           e.TargetPath,
		Mode:             string(e.Mode),
		Reason:           e.Reason,
		RiskFlags:        e.RiskFlags,
		Context:          redact.Context(e.Context),
		ConstitutionHash: e.ConstitutionHash,
	}
}
