package tools

import (
	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// definitions holds the JSON Schema for every tool the platform offers.
var definitions = map[string]realtime.ToolDefinition{
	"check_availability": {
		Name: "check_availability",
		Description: "Look up open appointment slots. Returns the only times you may offer; " +
			"never invent times that are not in the result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_date": map[string]any{
					"type":        "string",
					"description": "First date to check, YYYY-MM-DD.",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Last date to check, YYYY-MM-DD. Defaults to start_date.",
				},
			},
			"required": []string{"start_date"},
		},
	},
	"book_appointment": {
		Name: "book_appointment",
		Description: "Book an appointment at a time previously returned by check_availability. " +
			"Requires the attendee's email address.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"date": map[string]any{
					"type":        "string",
					"description": "Appointment date, YYYY-MM-DD.",
				},
				"time": map[string]any{
					"type":        "string",
					"description": "Appointment time as returned by check_availability, e.g. 14:00.",
				},
				"email": map[string]any{
					"type":        "string",
					"description": "Attendee email address.",
				},
				"duration_minutes": map[string]any{
					"type":        "integer",
					"description": "Optional appointment length override.",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Optional notes for the appointment.",
				},
			},
			"required": []string{"date", "time", "email"},
		},
	},
	"send_dtmf": {
		Name: "send_dtmf",
		Description: "Press phone keypad keys to navigate an automated menu. " +
			"Digits 0-9, *, #, A-D; w is a half-second pause.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"digits": map[string]any{
					"type":        "string",
					"description": "The key sequence to press, e.g. 1 or 1w2.",
				},
			},
			"required": []string{"digits"},
		},
	},
}

// Definitions returns the tool schemas for the agent's enabled tools, in the
// order they appear in EnabledTools. Unknown names are skipped; booking tools
// are skipped when the agent has no calendar event type.
func Definitions(agent domain.Agent) []realtime.ToolDefinition {
	out := make([]realtime.ToolDefinition, 0, len(agent.EnabledTools))
	for _, name := range agent.EnabledTools {
		def, ok := definitions[name]
		if !ok {
			continue
		}
		if (name == "check_availability" || name == "book_appointment") && agent.CalendarEventTypeID == 0 {
			continue
		}
		out = append(out, def)
	}
	return out
}
