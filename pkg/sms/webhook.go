package sms

import (
	"encoding/json"
	"fmt"
)

// Messaging webhook event types consumed by the campaign dispatcher.
const (
	WebhookMessageReceived  = "message.received"
	WebhookMessageFinalized = "message.finalized"
)

// InboundMessage is a decoded messaging webhook.
type InboundMessage struct {
	EventType string

	From string
	To   string
	Text string

	// DeliveryStatus is set on message.finalized (e.g. "delivered",
	// "sending_failed").
	DeliveryStatus string
}

// messageEnvelope is the carrier's outer wrapper, mirroring the call-event
// envelope: {"data": {"event_type": ..., "payload": {...}}}.
type messageEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				PhoneNumber string `json:"phone_number"`
				Status      string `json:"status"`
			} `json:"to"`
			Text string `json:"text"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseInbound decodes a messaging webhook request body.
func ParseInbound(body []byte) (*InboundMessage, error) {
	var env messageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("sms: parse webhook: %w", err)
	}
	if env.Data.EventType == "" {
		return nil, fmt.Errorf("sms: webhook missing event_type")
	}
	msg := InboundMessage{
		EventType: env.Data.EventType,
		From:      env.Data.Payload.From.PhoneNumber,
		Text:      env.Data.Payload.Text,
	}
	if len(env.Data.Payload.To) > 0 {
		msg.To = env.Data.Payload.To[0].PhoneNumber
		msg.DeliveryStatus = env.Data.Payload.To[0].Status
	}
	return &msg, nil
}
