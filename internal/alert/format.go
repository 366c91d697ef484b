package alert

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	flags := "none"
	if len(event.RiskFlags) > 0 {
		flags = strings.Join(event.RiskFlags, ", ")
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("actiongate: %s", event.Mode),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Actor:* %s (%s)", event.Actor, event.ActorType)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s", event.Action)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Target:* %s", event.Target)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %s", flags)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    event.EventID,
		"payload": map[string]any{
			"summary":  fmt.Sprintf("actiongate %s: %s %s", event.Mode, event.Action, event.Target),
			"severity": severityFor(event),
			"source":   "actiongate",
			"custom_details": map[string]any{
				"actor":      event.Actor,
				"action":     event.Action,
				"target":     event.Target,
				"reason":     event.Reason,
				"risk_flags": event.RiskFlags,
				"event_id":   event.EventID,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event AlertEvent) string {
	switch {
	case slices.Contains(event.RiskFlags, string(model.RiskConstitutionalViolation)):
		return "critical"
	case event.Mode == string(model.Deny):
		return "error"
	case event.Mode == string(model.Hold):
		return "warning"
	default:
		return "info"
	}
}
