// Package tools executes the function calls an AI provider emits mid-call:
// calendar availability lookups, appointment booking, and DTMF key presses.
//
// Every execution returns a JSON string, never a Go error — tool failures
// are structured results the model reads and recovers from in-conversation.
// Each invocation is bounded by a timeout; on expiry the model receives a
// timed-out result instead of silence.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/ivr"
	"github.com/parlance-ai/parlance/internal/observe"
	"github.com/parlance-ai/parlance/pkg/calendar"
)

// Default execution bounds.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultDTMFDurationMs = 250
)

// timedOutResult is returned verbatim when a tool exceeds its deadline.
const timedOutResult = `{"success":false,"error":"Tool execution timed out"}`

// Calendar is the slice of the scheduling provider the executor needs.
type Calendar interface {
	AvailableSlots(ctx context.Context, eventTypeID int, start, end time.Time) ([]calendar.Slot, error)
	CreateBooking(ctx context.Context, req calendar.BookingRequest) (*calendar.Booking, error)
}

// DTMFSender forwards touch tones to the carrier control plane.
type DTMFSender interface {
	SendDTMF(ctx context.Context, callControlID, digits string, durationMs int) error
}

// OutcomeStore persists the booking outcome on the call's anchor record.
type OutcomeStore interface {
	SetBookingOutcome(ctx context.Context, callID, outcome string) error
}

// Config assembles an [Executor] for one call.
type Config struct {
	Agent  domain.Agent
	CallID string

	// Contact is used as the booking attendee. Optional.
	Contact *domain.Contact

	Calendar Calendar
	DTMF     DTMFSender
	Outcomes OutcomeStore

	// Timeout bounds each tool invocation. Zero means [DefaultTimeout].
	Timeout time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Executor dispatches named tool calls for a single voice session. Safe for
// concurrent use, though in practice the session's event loop calls it
// serially.
type Executor struct {
	cfg      Config
	location *time.Location
	metrics  *observe.Metrics
}

// New creates an executor. The agent's timezone is resolved once; an
// unparseable zone falls back to UTC with a warning.
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	loc := time.UTC
	if cfg.Agent.Timezone != "" {
		l, err := time.LoadLocation(cfg.Agent.Timezone)
		if err != nil {
			slog.Warn("tools: unknown agent timezone, using UTC",
				"agent_id", cfg.Agent.ID, "timezone", cfg.Agent.Timezone)
		} else {
			loc = l
		}
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Executor{cfg: cfg, location: loc, metrics: m}
}

// Execute runs the named tool with the model's raw JSON arguments and
// returns the JSON result to submit back to the provider. It never returns
// an error: failures, including timeouts and unknown tool names, come back
// as {"success":false, ...} results.
func (e *Executor) Execute(ctx context.Context, name, argsJSON string) string {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan string, 1)
	go func() {
		done <- e.dispatch(ctx, name, argsJSON)
	}()

	var out string
	select {
	case out = <-done:
	case <-ctx.Done():
		out = timedOutResult
		slog.Warn("tools: execution timed out", "call_id", e.cfg.CallID, "tool", name)
	}

	elapsed := time.Since(start)
	e.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("tool", name)))
	e.metrics.RecordToolCall(ctx, name, resultStatus(out))
	slog.Debug("tools: executed", "call_id", e.cfg.CallID, "tool", name, "duration", elapsed)

	return out
}

func (e *Executor) dispatch(ctx context.Context, name, argsJSON string) string {
	switch name {
	case "check_availability":
		return e.checkAvailability(ctx, argsJSON)
	case "book_appointment":
		return e.bookAppointment(ctx, argsJSON)
	case "send_dtmf":
		return e.sendDTMF(ctx, argsJSON)
	}
	return errResult(fmt.Sprintf("Unknown tool: %s", name))
}

// slotView is one bookable time as presented to the model: a short local
// time for matching, the canonical ISO instant for booking, and a 12-hour
// display form for speech.
type slotView struct {
	Time        string `json:"time"`
	ISO         string `json:"iso"`
	DisplayTime string `json:"display_time"`
}

func (e *Executor) slotViews(slots []calendar.Slot) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		local := s.Start.In(e.location)
		out = append(out, slotView{
			Time:        local.Format("15:04"),
			ISO:         s.Start.UTC().Format(time.RFC3339),
			DisplayTime: local.Format("3:04 PM"),
		})
	}
	return out
}

// fetchSlots lists slots for the local-date window [startDate, endDate].
func (e *Executor) fetchSlots(ctx context.Context, startDate, endDate string) ([]calendar.Slot, error) {
	start, err := time.ParseInLocation("2006-01-02", startDate, e.location)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date %q, expected YYYY-MM-DD", startDate)
	}
	end := start
	if endDate != "" {
		end, err = time.ParseInLocation("2006-01-02", endDate, e.location)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date %q, expected YYYY-MM-DD", endDate)
		}
	}
	return e.cfg.Calendar.AvailableSlots(ctx, e.cfg.Agent.CalendarEventTypeID, start, end.AddDate(0, 0, 1))
}

func (e *Executor) checkAvailability(ctx context.Context, argsJSON string) string {
	if e.cfg.Calendar == nil || e.cfg.Agent.CalendarEventTypeID == 0 {
		return errResult("Scheduling is not configured for this agent")
	}

	var args struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return errResult("Invalid arguments: " + err.Error())
	}

	slots, err := e.fetchSlots(ctx, args.StartDate, args.EndDate)
	if err != nil {
		return errResult(err.Error())
	}

	return okResult(map[string]any{
		"slots":   e.slotViews(slots),
		"message": "Offer ONLY these times to the caller; do not invent times.",
	})
}

func (e *Executor) bookAppointment(ctx context.Context, argsJSON string) string {
	if e.cfg.Calendar == nil || e.cfg.Agent.CalendarEventTypeID == 0 {
		return errResult("Scheduling is not configured for this agent")
	}

	var args struct {
		Date            string `json:"date"`
		Time            string `json:"time"`
		Email           string `json:"email"`
		DurationMinutes int    `json:"duration_minutes"`
		Notes           string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return errResult("Invalid arguments: " + err.Error())
	}
	if args.Email == "" {
		return errResult("An email address is required to book")
	}

	// Pre-validate: the requested slot must still be open.
	slots, err := e.fetchSlots(ctx, args.Date, "")
	if err != nil {
		return errResult(err.Error())
	}
	views := e.slotViews(slots)

	var chosen *slotView
	for i := range views {
		if views[i].Time == args.Time || views[i].DisplayTime == args.Time {
			chosen = &views[i]
			break
		}
	}
	if chosen == nil {
		e.recordBookingOutcome(ctx, "failed")
		return jsonResult(map[string]any{
			"success":           false,
			"alternative_slots": views,
			"message": fmt.Sprintf(
				"The %s slot on %s is no longer available. Offer one of the alternative slots instead; do NOT re-offer %s.",
				args.Time, args.Date, args.Time),
		})
	}

	attendee := calendar.Attendee{
		Email:    args.Email,
		TimeZone: e.location.String(),
		Language: "en",
	}
	if c := e.cfg.Contact; c != nil {
		attendee.Name = c.FullName()
		attendee.PhoneNumber = c.Phone
	}
	if attendee.Name == "" {
		attendee.Name = args.Email
	}

	req := calendar.BookingRequest{
		EventTypeID: e.cfg.Agent.CalendarEventTypeID,
		// The canonical instant from the slot listing, verbatim, so no
		// timezone conversion happens twice.
		Start:    chosen.ISO,
		Attendee: attendee,
	}
	if args.Notes != "" || args.DurationMinutes != 0 {
		req.Metadata = map[string]any{}
		if args.Notes != "" {
			req.Metadata["notes"] = args.Notes
		}
		if args.DurationMinutes != 0 {
			req.Metadata["duration_minutes"] = args.DurationMinutes
		}
	}

	booking, err := e.cfg.Calendar.CreateBooking(ctx, req)
	if err != nil {
		e.recordBookingOutcome(ctx, "failed")
		slog.Warn("tools: booking failed", "call_id", e.cfg.CallID, "err", err)
		return errResult("Booking failed: " + err.Error())
	}

	e.recordBookingOutcome(ctx, "success")
	return okResult(map[string]any{
		"booking_uid": booking.UID,
		"start":       chosen.ISO,
		"message":     fmt.Sprintf("Booked %s at %s. Confirm it to the caller.", args.Date, chosen.DisplayTime),
	})
}

func (e *Executor) sendDTMF(ctx context.Context, argsJSON string) string {
	if e.cfg.DTMF == nil {
		return errResult("DTMF is not available on this call")
	}

	var args struct {
		Digits string `json:"digits"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return errResult("Invalid arguments: " + err.Error())
	}

	if !ivr.ValidCharset(args.Digits) {
		return errResult(fmt.Sprintf(
			"Invalid DTMF %q: only digits 0-9, *, #, A-D, and w pauses are allowed", args.Digits))
	}
	if !ivr.HasTone(args.Digits) {
		return errResult(
			"DTMF must contain at least one actual key, not only w pauses. Send a digit to press.")
	}

	if err := e.cfg.DTMF.SendDTMF(ctx, e.cfg.CallID, args.Digits, DefaultDTMFDurationMs); err != nil {
		return errResult("Sending DTMF failed: " + err.Error())
	}
	return okResult(map[string]any{"digits": args.Digits})
}

// recordBookingOutcome best-effort persists the outcome on the anchor row.
// Failures are logged, not surfaced to the model.
func (e *Executor) recordBookingOutcome(ctx context.Context, outcome string) {
	if e.cfg.Outcomes == nil {
		return
	}
	if err := e.cfg.Outcomes.SetBookingOutcome(ctx, e.cfg.CallID, outcome); err != nil {
		slog.Warn("tools: persist booking outcome", "call_id", e.cfg.CallID, "outcome", outcome, "err", err)
	}
}

// ── Result encoding ──────────────────────────────────────────────────────

func okResult(fields map[string]any) string {
	fields["success"] = true
	return jsonResult(fields)
}

func errResult(msg string) string {
	return jsonResult(map[string]any{"success": false, "error": msg})
}

func jsonResult(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return `{"success":false,"error":"internal result encoding error"}`
	}
	return string(b)
}

// resultStatus derives the metrics status label from a result payload.
func resultStatus(result string) string {
	var probe struct {
		Success bool `json:"success"`
	}
	if json.Unmarshal([]byte(result), &probe) == nil && probe.Success {
		return "ok"
	}
	return "error"
}
