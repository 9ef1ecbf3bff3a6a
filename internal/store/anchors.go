package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlance-ai/parlance/internal/domain"
)

// AnchorStore persists the per-call anchor rows. An anchor is written before
// the carrier call is placed (or on inbound acceptance) so the media bridge
// can recover the business context from the call id alone.
type AnchorStore struct {
	pool *pgxpool.Pool
}

const qInsertAnchor = `
INSERT INTO anchor_messages (
    call_id, agent_id, contact_id, campaign_id, direction, prompt_version_id
) VALUES ($1,$2,$3,$4,$5,$6)
`

// Create writes a fresh anchor. Duplicate call ids are rejected by the
// primary key.
func (s *AnchorStore) Create(ctx context.Context, a domain.AnchorMessage) error {
	_, err := s.pool.Exec(ctx, qInsertAnchor,
		a.CallID, a.AgentID, a.ContactID, a.CampaignID, string(a.Direction), a.PromptVersionID,
	)
	if err != nil {
		return fmt.Errorf("anchor store: create %s: %w", a.CallID, err)
	}
	return nil
}

const qSelectAnchor = `
SELECT call_id, agent_id, contact_id, campaign_id, direction,
       prompt_version_id, transcript, booking_outcome, outcome,
       created_at, ended_at
FROM anchor_messages
WHERE call_id = $1
`

// Get loads the anchor for a call id.
func (s *AnchorStore) Get(ctx context.Context, callID string) (domain.AnchorMessage, error) {
	var a domain.AnchorMessage
	var direction, outcome string
	var transcript []byte
	err := s.pool.QueryRow(ctx, qSelectAnchor, callID).Scan(
		&a.CallID, &a.AgentID, &a.ContactID, &a.CampaignID, &direction,
		&a.PromptVersionID, &transcript, &a.BookingOutcome, &outcome,
		&a.CreatedAt, &a.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnchorMessage{}, ErrNotFound
	}
	if err != nil {
		return domain.AnchorMessage{}, fmt.Errorf("anchor store: get %s: %w", callID, err)
	}
	a.Direction = domain.Direction(direction)
	a.Outcome = domain.CallOutcome(outcome)
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &a.Transcript); err != nil {
			return domain.AnchorMessage{}, fmt.Errorf("anchor store: get %s: decode transcript: %w", callID, err)
		}
	}
	return a, nil
}

const qSetBookingOutcome = `
UPDATE anchor_messages SET booking_outcome = $2 WHERE call_id = $1
`

// SetBookingOutcome records the booking tool's result mid-call. Satisfies the
// tool executor's outcome sink.
func (s *AnchorStore) SetBookingOutcome(ctx context.Context, callID, outcome string) error {
	if _, err := s.pool.Exec(ctx, qSetBookingOutcome, callID, outcome); err != nil {
		return fmt.Errorf("anchor store: set booking outcome %s: %w", callID, err)
	}
	return nil
}

const qFinishAnchor = `
UPDATE anchor_messages SET transcript = $2, outcome = $3, ended_at = now()
WHERE call_id = $1
`

// Finish stores the final transcript and outcome when the session ends.
func (s *AnchorStore) Finish(ctx context.Context, callID string, transcript []domain.TranscriptEntry, outcome domain.CallOutcome) error {
	if transcript == nil {
		transcript = []domain.TranscriptEntry{}
	}
	raw, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("anchor store: finish %s: encode transcript: %w", callID, err)
	}
	if _, err := s.pool.Exec(ctx, qFinishAnchor, callID, raw, string(outcome)); err != nil {
		return fmt.Errorf("anchor store: finish %s: %w", callID, err)
	}
	return nil
}
