package alert

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/podguard/internal/model"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, e Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(e)
	case "pagerduty":
		return formatPagerDuty(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func formatSlack(e Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", e.SessionID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tenant:* %s", e.TenantID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*User:* %s", e.UserID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", e.Reason)},
	}
	if e.RequestID != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Request:* %s", e.RequestID)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("podguard: %s", e.Type),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(e Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("podguard %s: %s", e.Type, e.Reason),
			"severity": pagerDutySeverity(e.Severity),
			"source":   "podguard",
			"custom_details": map[string]any{
				"session_id": e.SessionID,
				"tenant_id":  e.TenantID,
				"user_id":    e.UserID,
				"request_id": e.RequestID,
				"topic":      e.Topic,
				"data":       e.Data,
			},
		},
	}
	return json.Marshal(payload)
}

func pagerDutySeverity(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "critical"
	case model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}
