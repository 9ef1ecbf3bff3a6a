// Package telephony is the client for the carrier's call-control plane and
// the type definitions for its media WebSocket protocol.
//
// The control plane is a REST API addressed by call-control ID: answer,
// hangup, media streaming start/stop, DTMF transmission, and outbound dial.
// Media flows over a separate JSON-framed WebSocket handled by the bridge;
// this package only defines the frame types (see media.go).
package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/pkg/rest"
)

const (
	// DTMF tone duration bounds accepted by the carrier, in milliseconds.
	MinDTMFDurationMs = 100
	MaxDTMFDurationMs = 500

	// appName identifies the call-control application this service creates
	// on first use if none exists.
	appName = "parlance-voice-bridge"
)

// Client talks to the carrier call-control REST API. Safe for concurrent use.
// The call-control application ID is discovered once and cached process-wide.
type Client struct {
	rc *rest.Client

	mu    sync.Mutex
	appID string
}

// New creates a carrier client. baseURL is the API root, e.g.
// "https://api.telnyx.com/v2".
func New(baseURL, apiKey string, opts ...rest.Option) *Client {
	return &Client{rc: rest.New(baseURL, apiKey, opts...)}
}

// Answer answers a ringing inbound call.
func (c *Client) Answer(ctx context.Context, callControlID string) error {
	path := fmt.Sprintf("/calls/%s/actions/answer", url.PathEscape(callControlID))
	if err := c.rc.Post(ctx, path, map[string]string{}, nil); err != nil {
		return fmt.Errorf("telephony: answer %s: %w", callControlID, err)
	}
	return nil
}

// Hangup terminates an in-progress call.
func (c *Client) Hangup(ctx context.Context, callControlID string) error {
	path := fmt.Sprintf("/calls/%s/actions/hangup", url.PathEscape(callControlID))
	if err := c.rc.Post(ctx, path, map[string]string{}, nil); err != nil {
		return fmt.Errorf("telephony: hangup %s: %w", callControlID, err)
	}
	return nil
}

// StreamingStart asks the carrier to open its media WebSocket to streamURL
// for bidirectional μ-law audio.
func (c *Client) StreamingStart(ctx context.Context, callControlID, streamURL string) error {
	path := fmt.Sprintf("/calls/%s/actions/streaming_start", url.PathEscape(callControlID))
	body := map[string]string{
		"stream_url":   streamURL,
		"stream_track": "both_tracks",
	}
	if err := c.rc.Post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("telephony: streaming_start %s: %w", callControlID, err)
	}
	return nil
}

// StreamingStop tears down the media stream without hanging up.
func (c *Client) StreamingStop(ctx context.Context, callControlID string) error {
	path := fmt.Sprintf("/calls/%s/actions/streaming_stop", url.PathEscape(callControlID))
	if err := c.rc.Post(ctx, path, map[string]string{}, nil); err != nil {
		return fmt.Errorf("telephony: streaming_stop %s: %w", callControlID, err)
	}
	return nil
}

// SendDTMF plays touch tones into the call. durationMs is clamped to the
// carrier's accepted range.
func (c *Client) SendDTMF(ctx context.Context, callControlID, digits string, durationMs int) error {
	if durationMs < MinDTMFDurationMs {
		durationMs = MinDTMFDurationMs
	}
	if durationMs > MaxDTMFDurationMs {
		durationMs = MaxDTMFDurationMs
	}
	path := fmt.Sprintf("/calls/%s/actions/send_dtmf", url.PathEscape(callControlID))
	body := map[string]any{
		"digits":          digits,
		"duration_millis": durationMs,
	}
	if err := c.rc.Post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("telephony: send_dtmf %s: %w", callControlID, err)
	}
	return nil
}

// DialRequest describes an outbound call.
type DialRequest struct {
	To         string
	From       string
	WebhookURL string

	// EnableAMD requests answering-machine detection; the result arrives as
	// a call.machine.detection.ended webhook.
	EnableAMD bool
}

// Dial originates an outbound call and returns the carrier-assigned
// call-control ID, which becomes the session key once media streaming opens.
func (c *Client) Dial(ctx context.Context, req DialRequest) (string, error) {
	appID, err := c.ensureApplication(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"to":            req.To,
		"from":          req.From,
		"connection_id": appID,
		"webhook_url":   req.WebhookURL,
		"audio_codec":   "ulaw",
		"client_state":  uuid.NewString(),
	}
	if req.EnableAMD {
		body["answering_machine_detection"] = "detect"
	}

	var resp struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
		} `json:"data"`
	}
	if err := c.rc.Post(ctx, "/calls", body, &resp); err != nil {
		return "", fmt.Errorf("telephony: dial %s: %w", req.To, err)
	}
	if resp.Data.CallControlID == "" {
		return "", fmt.Errorf("telephony: dial %s: carrier returned no call_control_id", req.To)
	}
	return resp.Data.CallControlID, nil
}

// ensureApplication returns the cached call-control application ID,
// discovering or creating the application on first use.
func (c *Client) ensureApplication(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.appID != "" {
		return c.appID, nil
	}

	var list struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"application_name"`
		} `json:"data"`
	}
	if err := c.rc.Get(ctx, "/call_control_applications", nil, &list); err != nil {
		return "", fmt.Errorf("telephony: list applications: %w", err)
	}
	for _, app := range list.Data {
		if app.Name == appName {
			c.appID = app.ID
			return c.appID, nil
		}
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	body := map[string]any{
		"application_name":  appName,
		"webhook_event_url": "",
	}
	if err := c.rc.Post(ctx, "/call_control_applications", body, &created); err != nil {
		return "", fmt.Errorf("telephony: create application: %w", err)
	}
	c.appID = created.Data.ID
	slog.Info("telephony: created call-control application", "app_id", c.appID)
	return c.appID, nil
}
