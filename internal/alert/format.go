package alert

import (
	"encoding/json"
	"fmt"
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
	via := event.Source
	if event.Format != "" {
		via = fmt.Sprintf("%s (%s/%s)", event.Source, event.Format, event.Mode)
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("typegate: %s", event.Decision),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Type:* %s", event.Type)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Via:* %s", via)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Kind:* %s", event.Kind)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("typegate %s: %s", event.Decision, event.Type),
			"severity": severityFor(event),
			"source":   "typegate",
			"custom_details": map[string]any{
				"type":        event.Type,
				"kind":        event.Kind,
				"reason":      event.Reason,
				"rule":        event.Rule,
				"request_id":  event.RequestID,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

// severityFor ranks an explicit deny above an unlisted type, and both above
// malformed input.
func severityFor(event AlertEvent) string {
	switch {
	case event.Decision == "admit":
		return "info"
	case event.Kind == "denied":
		return "critical"
	case event.Kind == "not_allowed":
		return "error"
	default:
		return "warning"
	}
}
