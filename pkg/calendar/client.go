// Package calendar is a minimal client for the scheduling provider's REST
// API: listing available slots for an event type and creating or cancelling
// bookings. It is consumed exclusively by the in-call tool executor.
package calendar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/parlance-ai/parlance/pkg/rest"
)

// Slot is one bookable start time. Start is the provider's canonical instant;
// bookings must be created with exactly this value to avoid timezone
// double-conversion.
type Slot struct {
	Start time.Time `json:"start"`
}

// Attendee identifies the person the booking is for.
type Attendee struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	TimeZone    string `json:"timeZone"`
	Language    string `json:"language,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// BookingRequest creates one booking at a slot's canonical start time.
type BookingRequest struct {
	EventTypeID int            `json:"eventTypeId"`
	Start       string         `json:"start"` // ISO 8601 UTC, verbatim from the slot
	Attendee    Attendee       `json:"attendee"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Booking is the provider's confirmation.
type Booking struct {
	UID   string `json:"uid"`
	Start string `json:"start"`
}

// Client talks to the calendar provider. Safe for concurrent use.
type Client struct {
	rc *rest.Client
}

// New creates a calendar client rooted at baseURL.
func New(baseURL, apiKey string, opts ...rest.Option) *Client {
	return &Client{rc: rest.New(baseURL, apiKey, opts...)}
}

// AvailableSlots lists open start times for eventTypeID in [start, end).
func (c *Client) AvailableSlots(ctx context.Context, eventTypeID int, start, end time.Time) ([]Slot, error) {
	q := url.Values{}
	q.Set("eventTypeId", strconv.Itoa(eventTypeID))
	q.Set("startTime", start.UTC().Format(time.RFC3339))
	q.Set("endTime", end.UTC().Format(time.RFC3339))

	var resp struct {
		Data struct {
			Slots []Slot `json:"slots"`
		} `json:"data"`
	}
	if err := c.rc.Get(ctx, "/slots/available", q, &resp); err != nil {
		return nil, fmt.Errorf("calendar: available slots: %w", err)
	}
	return resp.Data.Slots, nil
}

// CreateBooking books a slot. The Start field must be the canonical ISO
// instant from a previously listed Slot.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	var resp struct {
		Data Booking `json:"data"`
	}
	if err := c.rc.Post(ctx, "/bookings", req, &resp); err != nil {
		return nil, fmt.Errorf("calendar: create booking: %w", err)
	}
	return &resp.Data, nil
}

// CancelBooking cancels by booking UID.
func (c *Client) CancelBooking(ctx context.Context, uid string) error {
	if err := c.rc.Delete(ctx, "/bookings/"+url.PathEscape(uid)); err != nil {
		return fmt.Errorf("calendar: cancel booking %s: %w", uid, err)
	}
	return nil
}
