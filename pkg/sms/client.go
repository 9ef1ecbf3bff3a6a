// Package sms is the outbound messaging client used by the campaign
// dispatcher for initial sends, follow-ups, and voice-call SMS fallback.
package sms

import (
	"context"
	"fmt"

	"github.com/parlance-ai/parlance/pkg/rest"
)

// Message is the provider's acknowledgement of an accepted send.
type Message struct {
	ID string `json:"id"`
}

// Client talks to the SMS provider. Safe for concurrent use.
type Client struct {
	rc *rest.Client
}

// New creates an SMS client rooted at baseURL.
func New(baseURL, apiKey string, opts ...rest.Option) *Client {
	return &Client{rc: rest.New(baseURL, apiKey, opts...)}
}

// Send submits one outbound message. webhookURL receives delivery receipts
// and inbound replies.
func (c *Client) Send(ctx context.Context, from, to, body, webhookURL string) (*Message, error) {
	req := map[string]string{
		"from":        from,
		"to":          to,
		"body":        body,
		"webhook_url": webhookURL,
	}
	var resp struct {
		Data Message `json:"data"`
	}
	if err := c.rc.Post(ctx, "/messages", req, &resp); err != nil {
		return nil, fmt.Errorf("sms: send to %s: %w", to, err)
	}
	return &resp.Data, nil
}
