package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/registry"
	"github.com/parlance-ai/parlance/internal/session"
	"github.com/parlance-ai/parlance/pkg/sms"
	"github.com/parlance-ai/parlance/pkg/telephony"
)

// maxWebhookBody bounds carrier callback bodies.
const maxWebhookBody = 1 << 20

// CallControl is the carrier control-plane surface the webhook router needs.
// *telephony.Client satisfies it.
type CallControl interface {
	Answer(ctx context.Context, callControlID string) error
	Hangup(ctx context.Context, callControlID string) error
	StreamingStart(ctx context.Context, callControlID, streamURL string) error
}

// AnchorWriter records the business context for a new inbound call.
type AnchorWriter interface {
	Create(ctx context.Context, a domain.AnchorMessage) error
}

// ReplyHandler processes inbound SMS replies. The campaign dispatcher
// implements it.
type ReplyHandler interface {
	HandleReply(ctx context.Context, from, body string) error
}

// WebhookRouter translates carrier callbacks into session and campaign
// actions. Call events are routed to the owning session through the
// registry; inbound call initiation answers the call and points the
// carrier's media stream at the bridge.
type WebhookRouter struct {
	Calls    CallControl
	Anchors  AnchorWriter
	Registry *registry.Registry[*session.Session]
	Replies  ReplyHandler

	// PublicURL is the externally reachable base this server is deployed
	// under; the media stream URL is derived from it.
	PublicURL string

	// InboundAgentID answers incoming calls. Empty hangs them up.
	InboundAgentID string
}

// HandleTelephony serves "POST /webhooks/telephony".
func (wr *WebhookRouter) HandleTelephony(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	evt, err := telephony.ParseWebhook(body)
	if err != nil {
		slog.Warn("unparseable call webhook", "error", err)
		http.Error(w, "bad webhook", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch evt.EventType {
	case telephony.WebhookCallInitiated:
		if evt.Direction == "incoming" {
			wr.handleInbound(ctx, evt)
		}

	case telephony.WebhookCallAnswered:
		// Outbound media streaming starts on answer; the dial request
		// carries no stream URL.
		if evt.Direction == "outgoing" {
			if err := wr.Calls.StreamingStart(ctx, evt.CallControlID, wr.streamURL(evt.CallControlID)); err != nil {
				slog.Error("streaming start failed", "call_id", evt.CallControlID, "error", err)
			}
		}
		if sess, ok := wr.Registry.Get(evt.CallControlID); ok {
			sess.NotifyAnswered()
		}

	case telephony.WebhookMachineDetectionEnded:
		if evt.AMDResult == telephony.AMDResultMachine {
			if sess, ok := wr.Registry.Get(evt.CallControlID); ok {
				sess.NotifyMachineDetected()
			}
		}

	case telephony.WebhookCallHangup:
		if sess, ok := wr.Registry.Get(evt.CallControlID); ok {
			sess.Close()
		}

	default:
		slog.Debug("ignoring call webhook", "event_type", evt.EventType)
	}

	w.WriteHeader(http.StatusOK)
}

// handleInbound anchors, answers, and starts media streaming for an
// incoming call.
func (wr *WebhookRouter) handleInbound(ctx context.Context, evt *telephony.WebhookEvent) {
	if wr.InboundAgentID == "" {
		slog.Warn("no inbound agent configured, hanging up", "from", evt.From, "to", evt.To)
		if err := wr.Calls.Hangup(ctx, evt.CallControlID); err != nil {
			slog.Error("hangup failed", "call_id", evt.CallControlID, "error", err)
		}
		return
	}

	// The anchor must exist before the media socket opens; the bridge
	// rejects unknown call ids.
	anchor := domain.AnchorMessage{
		CallID:    evt.CallControlID,
		AgentID:   wr.InboundAgentID,
		Direction: domain.DirectionInbound,
		CreatedAt: time.Now().UTC(),
	}
	if err := wr.Anchors.Create(ctx, anchor); err != nil {
		slog.Error("inbound anchor create failed", "call_id", evt.CallControlID, "error", err)
		if err := wr.Calls.Hangup(ctx, evt.CallControlID); err != nil {
			slog.Error("hangup failed", "call_id", evt.CallControlID, "error", err)
		}
		return
	}

	if err := wr.Calls.Answer(ctx, evt.CallControlID); err != nil {
		slog.Error("answer failed", "call_id", evt.CallControlID, "error", err)
		return
	}
	if err := wr.Calls.StreamingStart(ctx, evt.CallControlID, wr.streamURL(evt.CallControlID)); err != nil {
		slog.Error("streaming start failed", "call_id", evt.CallControlID, "error", err)
	}
	slog.Info("inbound call answered",
		"call_id", evt.CallControlID,
		"from", evt.From,
		"agent_id", wr.InboundAgentID,
	)
}

// HandleSMS serves "POST /webhooks/sms".
func (wr *WebhookRouter) HandleSMS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	msg, err := sms.ParseInbound(body)
	if err != nil {
		slog.Warn("unparseable sms webhook", "error", err)
		http.Error(w, "bad webhook", http.StatusBadRequest)
		return
	}

	switch msg.EventType {
	case sms.WebhookMessageReceived:
		if wr.Replies == nil {
			break
		}
		if err := wr.Replies.HandleReply(r.Context(), msg.From, msg.Text); err != nil {
			slog.Error("reply handling failed", "from", msg.From, "error", err)
		}

	case sms.WebhookMessageFinalized:
		slog.Debug("delivery receipt", "to", msg.To, "status", msg.DeliveryStatus)

	default:
		slog.Debug("ignoring sms webhook", "event_type", msg.EventType)
	}

	w.WriteHeader(http.StatusOK)
}

// streamURL derives the carrier-facing media WebSocket URL for a call from
// the configured public base URL.
func (wr *WebhookRouter) streamURL(callID string) string {
	base := strings.TrimSuffix(wr.PublicURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/voice/stream/" + url.PathEscape(callID)
}
