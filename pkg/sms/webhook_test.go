package sms_test

import (
	"testing"

	"github.com/parlance-ai/parlance/pkg/sms"
)

func TestParseInbound_MessageReceived(t *testing.T) {
	body := `{"data":{"event_type":"message.received","payload":{
		"from":{"phone_number":"+15550001111"},
		"to":[{"phone_number":"+15559990000","status":"webhook_delivered"}],
		"text":"STOP"}}}`

	msg, err := sms.ParseInbound([]byte(body))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if msg.EventType != sms.WebhookMessageReceived {
		t.Errorf("EventType = %q", msg.EventType)
	}
	if msg.From != "+15550001111" || msg.To != "+15559990000" {
		t.Errorf("From/To = %q/%q", msg.From, msg.To)
	}
	if msg.Text != "STOP" {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestParseInbound_DeliveryReceipt(t *testing.T) {
	body := `{"data":{"event_type":"message.finalized","payload":{
		"from":{"phone_number":"+15559990000"},
		"to":[{"phone_number":"+15550001111","status":"delivered"}]}}}`

	msg, err := sms.ParseInbound([]byte(body))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if msg.EventType != sms.WebhookMessageFinalized {
		t.Errorf("EventType = %q", msg.EventType)
	}
	if msg.DeliveryStatus != "delivered" {
		t.Errorf("DeliveryStatus = %q", msg.DeliveryStatus)
	}
}

func TestParseInbound_MissingEventType(t *testing.T) {
	if _, err := sms.ParseInbound([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for missing event_type")
	}
}
