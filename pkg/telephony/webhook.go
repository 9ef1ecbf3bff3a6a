package telephony

import (
	"encoding/json"
	"fmt"
)

// Carrier webhook event types consumed by the bridge.
const (
	WebhookCallInitiated         = "call.initiated"
	WebhookCallAnswered          = "call.answered"
	WebhookCallHangup            = "call.hangup"
	WebhookMachineDetectionEnded = "call.machine.detection.ended"
)

// Answering-machine detection results reported by the carrier.
const (
	AMDResultHuman   = "human"
	AMDResultMachine = "machine"
)

// WebhookEvent is the carrier's call-event envelope.
type WebhookEvent struct {
	EventType string `json:"event_type"`

	CallControlID string `json:"call_control_id"`
	Direction     string `json:"direction"` // "incoming" | "outgoing"
	From          string `json:"from"`
	To            string `json:"to"`

	// HangupCause is set on call.hangup (e.g. "normal_clearing", "busy",
	// "no_answer").
	HangupCause string `json:"hangup_cause,omitempty"`

	// AMDResult is set on call.machine.detection.ended.
	AMDResult string `json:"result,omitempty"`
}

// webhookEnvelope is the carrier's outer wrapper: {"data": {"event_type":
// ..., "payload": {...}}}.
type webhookEnvelope struct {
	Data struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	} `json:"data"`
}

// ParseWebhook decodes a carrier webhook request body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("telephony: parse webhook: %w", err)
	}
	if env.Data.EventType == "" {
		return nil, fmt.Errorf("telephony: webhook missing event_type")
	}
	evt := WebhookEvent{EventType: env.Data.EventType}
	if len(env.Data.Payload) > 0 {
		if err := json.Unmarshal(env.Data.Payload, &evt); err != nil {
			return nil, fmt.Errorf("telephony: parse webhook payload: %w", err)
		}
	}
	evt.EventType = env.Data.EventType
	return &evt, nil
}
