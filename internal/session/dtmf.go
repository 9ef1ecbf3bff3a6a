package session

import (
	"context"
	"log/slog"
	"regexp"
	"time"
)

// DefaultDTMFCooldown is the minimum gap between consecutive DTMF sends, so
// the remote IVR's input buffer is not overrun.
const DefaultDTMFCooldown = 3 * time.Second

// dtmfDurationMs is the per-tone duration requested from the carrier.
const dtmfDurationMs = 250

// dtmfTag matches one complete DTMF tag in agent output.
var dtmfTag = regexp.MustCompile(`(?i)<dtmf>([0-9*#a-dw]+)</dtmf>`)

// DTMFSender forwards touch tones to the carrier control plane.
type DTMFSender interface {
	SendDTMF(ctx context.Context, callControlID, digits string, durationMs int) error
}

// dtmfHandler scans the incrementally growing agent transcript for newly
// completed DTMF tags and transmits them. It is the ONLY component that
// transmits DTMF; the IVR detector just records what was sent.
//
// All methods run on the session's event loop, so the scan position and the
// last-sent timestamp need no locking.
type dtmfHandler struct {
	sender   DTMFSender
	callID   string
	cooldown time.Duration

	// scanPos is the index into the current response's accumulated text up
	// to which tags have already been handled. It only moves forward within
	// a response and resets to zero when a new response starts.
	scanPos  int
	lastSent time.Time

	// now is a test hook.
	now func() time.Time
}

func newDTMFHandler(sender DTMFSender, callID string, cooldown time.Duration) *dtmfHandler {
	if cooldown <= 0 {
		cooldown = DefaultDTMFCooldown
	}
	return &dtmfHandler{
		sender:   sender,
		callID:   callID,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Scan examines text (the full agent transcript of the current response) for
// complete tags beyond the scan position and transmits them, honoring the
// cooldown. Returns the digit sequences actually sent.
//
// A tag blocked by the cooldown is retried on the next scan: the position
// does not advance past it, so nothing is lost, and nothing is sent twice
// because the position does advance past every transmitted tag.
func (h *dtmfHandler) Scan(ctx context.Context, text string) []string {
	if h.sender == nil || h.scanPos >= len(text) {
		return nil
	}

	var sent []string
	for {
		loc := dtmfTag.FindStringSubmatchIndex(text[h.scanPos:])
		if loc == nil {
			break
		}
		if h.cooldown > 0 && h.now().Sub(h.lastSent) < h.cooldown && !h.lastSent.IsZero() {
			break // retry this tag on a later scan
		}

		digits := text[h.scanPos+loc[2] : h.scanPos+loc[3]]
		if err := h.sender.SendDTMF(ctx, h.callID, digits, dtmfDurationMs); err != nil {
			slog.Warn("session: dtmf send failed", "call_id", h.callID, "digits", digits, "err", err)
			// Advance anyway: retrying the same digits against a broken
			// control plane would spam the carrier.
		} else {
			sent = append(sent, digits)
		}
		h.lastSent = h.now()
		h.scanPos += loc[1]
	}
	return sent
}

// ResetScan restarts scanning for a new response.
func (h *dtmfHandler) ResetScan() {
	h.scanPos = 0
}
