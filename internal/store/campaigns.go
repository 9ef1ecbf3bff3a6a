package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlance-ai/parlance/internal/domain"
)

// CampaignStore persists campaigns and their contact enrollments. Batch
// claiming uses row locks with SKIP LOCKED so multiple dispatcher replicas
// never double-send to the same contact.
type CampaignStore struct {
	pool *pgxpool.Pool
}

const qInsertCampaign = `
INSERT INTO campaigns (
    id, workspace, type, status, from_numbers,
    initial_message_template, follow_up_template, agent_id, offer_id,
    sending_start_hour, sending_end_hour, sending_timezone, sending_days,
    messages_per_minute, max_follow_ups, follow_up_delay_hours, sms_fallback
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`

// Create inserts a campaign.
func (s *CampaignStore) Create(ctx context.Context, c domain.Campaign) error {
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	var startHour, endHour *int
	var tz string
	var days []int
	if c.SendingHours != nil {
		startHour, endHour = &c.SendingHours.StartHour, &c.SendingHours.EndHour
		tz = c.SendingHours.Timezone
		for _, d := range c.SendingHours.Days {
			days = append(days, int(d))
		}
	}
	_, err := s.pool.Exec(ctx, qInsertCampaign,
		c.ID, c.Workspace, string(c.Type), string(c.Status), c.FromNumbers,
		c.InitialMessageTemplate, c.FollowUpTemplate, c.AgentID, c.OfferID,
		startHour, endHour, tz, days,
		c.MessagesPerMinute, c.MaxFollowUps, c.FollowUpDelayHours, c.SMSFallback,
	)
	if err != nil {
		return fmt.Errorf("campaign store: create %s: %w", c.ID, err)
	}
	return nil
}

const qSelectCampaign = `
SELECT id, workspace, type, status, from_numbers,
       initial_message_template, follow_up_template, agent_id, offer_id,
       sending_start_hour, sending_end_hour, sending_timezone, sending_days,
       messages_per_minute, max_follow_ups, follow_up_delay_hours, sms_fallback
FROM campaigns
`

// Get loads one campaign by id.
func (s *CampaignStore) Get(ctx context.Context, id string) (domain.Campaign, error) {
	row := s.pool.QueryRow(ctx, qSelectCampaign+" WHERE id = $1", id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Campaign{}, ErrNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("campaign store: get %s: %w", id, err)
	}
	return c, nil
}

// Running returns every campaign in the running state.
func (s *CampaignStore) Running(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.pool.Query(ctx, qSelectCampaign+" WHERE status = 'running' ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("campaign store: running: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("campaign store: running: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetStatus transitions a campaign, refusing to move out of a sink state.
func (s *CampaignStore) SetStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() && status != current.Status {
		return fmt.Errorf("campaign store: campaign %s is %s and cannot transition to %s", id, current.Status, status)
	}
	const q = `UPDATE campaigns SET status = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id, string(status)); err != nil {
		return fmt.Errorf("campaign store: set status %s: %w", id, err)
	}
	return nil
}

const qEnroll = `
INSERT INTO campaign_contacts (campaign_id, contact_id, priority)
VALUES ($1, $2, $3)
ON CONFLICT (campaign_id, contact_id) DO NOTHING
`

// Enroll adds a contact to a campaign. Re-enrolling is a no-op.
func (s *CampaignStore) Enroll(ctx context.Context, campaignID, contactID string, priority int) error {
	if _, err := s.pool.Exec(ctx, qEnroll, campaignID, contactID, priority); err != nil {
		return fmt.Errorf("campaign store: enroll %s in %s: %w", contactID, campaignID, err)
	}
	return nil
}

// ClaimedBatch is a set of enrollment rows locked for exclusive processing.
// Rows stay locked until [ClaimedBatch.Close]; other claimants skip them.
type ClaimedBatch struct {
	tx   pgx.Tx
	Rows []domain.CampaignContact
}

const qClaimPending = `
SELECT cc.campaign_id, cc.contact_id, cc.status, cc.priority, cc.created_at,
       cc.messages_sent, cc.follow_ups_sent, cc.next_follow_up_at,
       cc.call_attempts, cc.last_error,
       c.id, c.workspace, c.phone, c.first_name, c.last_name,
       c.company_name, c.email, c.opted_out, c.first_contacted_at
FROM campaign_contacts cc
JOIN contacts c ON c.id = cc.contact_id
WHERE cc.campaign_id = $1 AND cc.status = 'pending' AND NOT c.opted_out
ORDER BY cc.priority DESC, cc.created_at
LIMIT $2
FOR UPDATE OF cc SKIP LOCKED
`

// ClaimPending locks up to limit pending enrollments for the campaign.
func (s *CampaignStore) ClaimPending(ctx context.Context, campaignID string, limit int) (*ClaimedBatch, error) {
	return s.claim(ctx, qClaimPending, campaignID, limit)
}

const qClaimFollowUps = `
SELECT cc.campaign_id, cc.contact_id, cc.status, cc.priority, cc.created_at,
       cc.messages_sent, cc.follow_ups_sent, cc.next_follow_up_at,
       cc.call_attempts, cc.last_error,
       c.id, c.workspace, c.phone, c.first_name, c.last_name,
       c.company_name, c.email, c.opted_out, c.first_contacted_at
FROM campaign_contacts cc
JOIN contacts c ON c.id = cc.contact_id
JOIN campaigns cam ON cam.id = cc.campaign_id
WHERE cc.campaign_id = $1
  AND cc.status IN ('sent', 'delivered')
  AND cc.next_follow_up_at IS NOT NULL AND cc.next_follow_up_at <= now()
  AND cc.follow_ups_sent < cam.max_follow_ups
  AND NOT c.opted_out
ORDER BY cc.next_follow_up_at
LIMIT $2
FOR UPDATE OF cc SKIP LOCKED
`

// ClaimFollowUps locks enrollments whose follow-up is due and under the
// campaign's follow-up cap.
func (s *CampaignStore) ClaimFollowUps(ctx context.Context, campaignID string, limit int) (*ClaimedBatch, error) {
	return s.claim(ctx, qClaimFollowUps, campaignID, limit)
}

func (s *CampaignStore) claim(ctx context.Context, q, campaignID string, limit int) (*ClaimedBatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign store: claim: %w", err)
	}

	rows, err := tx.Query(ctx, q, campaignID, limit)
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("campaign store: claim: %w", err)
	}
	defer rows.Close()

	batch := &ClaimedBatch{tx: tx}
	for rows.Next() {
		var cc domain.CampaignContact
		var status string
		err := rows.Scan(
			&cc.CampaignID, &cc.ContactID, &status, &cc.Priority, &cc.CreatedAt,
			&cc.MessagesSent, &cc.FollowUpsSent, &cc.NextFollowUpAt,
			&cc.CallAttempts, &cc.LastError,
			&cc.Contact.ID, &cc.Contact.Workspace, &cc.Contact.Phone,
			&cc.Contact.FirstName, &cc.Contact.LastName,
			&cc.Contact.CompanyName, &cc.Contact.Email,
			&cc.Contact.OptedOut, &cc.Contact.FirstContactedAt,
		)
		if err != nil {
			tx.Rollback(ctx)
			return nil, fmt.Errorf("campaign store: claim scan: %w", err)
		}
		cc.Status = domain.ContactStatus(status)
		batch.Rows = append(batch.Rows, cc)
	}
	if err := rows.Err(); err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("campaign store: claim: %w", err)
	}
	return batch, nil
}

const qBatchMarkSent = `
UPDATE campaign_contacts SET
    status = $3,
    messages_sent = messages_sent + 1,
    next_follow_up_at = $4,
    last_error = ''
WHERE campaign_id = $1 AND contact_id = $2
`

// MarkSent records a successful initial send and schedules the follow-up.
func (b *ClaimedBatch) MarkSent(ctx context.Context, cc domain.CampaignContact, nextFollowUp *time.Time) error {
	_, err := b.tx.Exec(ctx, qBatchMarkSent, cc.CampaignID, cc.ContactID, string(domain.ContactSent), nextFollowUp)
	if err != nil {
		return fmt.Errorf("campaign store: mark sent %s: %w", cc.ContactID, err)
	}
	return nil
}

const qBatchMarkFollowUp = `
UPDATE campaign_contacts SET
    messages_sent = messages_sent + 1,
    follow_ups_sent = follow_ups_sent + 1,
    next_follow_up_at = $3,
    last_error = ''
WHERE campaign_id = $1 AND contact_id = $2
`

// MarkFollowUpSent records a follow-up send. A nil next time ends the chain.
func (b *ClaimedBatch) MarkFollowUpSent(ctx context.Context, cc domain.CampaignContact, next *time.Time) error {
	_, err := b.tx.Exec(ctx, qBatchMarkFollowUp, cc.CampaignID, cc.ContactID, next)
	if err != nil {
		return fmt.Errorf("campaign store: mark follow-up %s: %w", cc.ContactID, err)
	}
	return nil
}

const qBatchMarkStatus = `
UPDATE campaign_contacts SET status = $3, last_error = $4
WHERE campaign_id = $1 AND contact_id = $2
`

// MarkStatus sets a claimed row's status, recording the error text for
// failures.
func (b *ClaimedBatch) MarkStatus(ctx context.Context, cc domain.CampaignContact, status domain.ContactStatus, lastError string) error {
	_, err := b.tx.Exec(ctx, qBatchMarkStatus, cc.CampaignID, cc.ContactID, string(status), lastError)
	if err != nil {
		return fmt.Errorf("campaign store: mark %s %s: %w", status, cc.ContactID, err)
	}
	return nil
}

const qBatchMarkCalling = `
UPDATE campaign_contacts SET status = 'calling', call_attempts = call_attempts + 1
WHERE campaign_id = $1 AND contact_id = $2
`

// MarkCalling records a dial attempt.
func (b *ClaimedBatch) MarkCalling(ctx context.Context, cc domain.CampaignContact) error {
	if _, err := b.tx.Exec(ctx, qBatchMarkCalling, cc.CampaignID, cc.ContactID); err != nil {
		return fmt.Errorf("campaign store: mark calling %s: %w", cc.ContactID, err)
	}
	return nil
}

// Close commits the batch, releasing the row locks.
func (b *ClaimedBatch) Close(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("campaign store: commit batch: %w", err)
	}
	return nil
}

// Abort rolls the batch back, returning the rows to their prior state.
func (b *ClaimedBatch) Abort(ctx context.Context) {
	b.tx.Rollback(ctx)
}

const qUpdateStatusByCall = `
UPDATE campaign_contacts SET status = $3, last_error = $4
WHERE campaign_id = $1 AND contact_id = $2
`

// UpdateContactStatus sets an enrollment's status outside a claimed batch.
// Used by the webhook path when a call resolves after the batch committed.
func (s *CampaignStore) UpdateContactStatus(ctx context.Context, campaignID, contactID string, status domain.ContactStatus, lastError string) error {
	_, err := s.pool.Exec(ctx, qUpdateStatusByCall, campaignID, contactID, string(status), lastError)
	if err != nil {
		return fmt.Errorf("campaign store: update contact status: %w", err)
	}
	return nil
}

const qUpdateStatusByContact = `
UPDATE campaign_contacts SET status = $2
WHERE contact_id = $1
  AND status NOT IN ('opted_out', 'failed', 'completed')
`

// UpdateStatusByContact sets the status of every non-terminal enrollment the
// contact has. Used when a reply arrives carrying only a phone number.
func (s *CampaignStore) UpdateStatusByContact(ctx context.Context, contactID string, status domain.ContactStatus) error {
	if _, err := s.pool.Exec(ctx, qUpdateStatusByContact, contactID, string(status)); err != nil {
		return fmt.Errorf("campaign store: update by contact %s: %w", contactID, err)
	}
	return nil
}

const qCountOpen = `
SELECT count(*) FROM campaign_contacts
WHERE campaign_id = $1
  AND (status NOT IN ('opted_out', 'failed', 'completed')
       AND NOT (status IN ('sent', 'delivered') AND next_follow_up_at IS NULL))
`

// MarkCompletedIfDone transitions a running campaign to completed when no
// enrollment has further work: every contact is terminal or has exhausted its
// follow-ups.
func (s *CampaignStore) MarkCompletedIfDone(ctx context.Context, campaignID string) (bool, error) {
	var open int
	if err := s.pool.QueryRow(ctx, qCountOpen, campaignID).Scan(&open); err != nil {
		return false, fmt.Errorf("campaign store: count open for %s: %w", campaignID, err)
	}
	if open > 0 {
		return false, nil
	}
	const q = `UPDATE campaigns SET status = 'completed' WHERE id = $1 AND status = 'running'`
	tag, err := s.pool.Exec(ctx, q, campaignID)
	if err != nil {
		return false, fmt.Errorf("campaign store: complete %s: %w", campaignID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOffer loads the offer attached to a campaign.
func (s *CampaignStore) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	const q = `SELECT id, name, discount, description, terms FROM offers WHERE id = $1`
	var o domain.Offer
	err := s.pool.QueryRow(ctx, q, id).Scan(&o.ID, &o.Name, &o.Discount, &o.Description, &o.Terms)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Offer{}, ErrNotFound
	}
	if err != nil {
		return domain.Offer{}, fmt.Errorf("campaign store: get offer %s: %w", id, err)
	}
	return o, nil
}

const qUpsertOffer = `
INSERT INTO offers (id, name, discount, description, terms)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    discount = EXCLUDED.discount,
    description = EXCLUDED.description,
    terms = EXCLUDED.terms
`

// UpsertOffer writes an offer.
func (s *CampaignStore) UpsertOffer(ctx context.Context, o domain.Offer) error {
	if _, err := s.pool.Exec(ctx, qUpsertOffer, o.ID, o.Name, o.Discount, o.Description, o.Terms); err != nil {
		return fmt.Errorf("campaign store: upsert offer %s: %w", o.ID, err)
	}
	return nil
}

func scanCampaign(row pgx.Row) (domain.Campaign, error) {
	var c domain.Campaign
	var typ, status string
	var startHour, endHour *int
	var tz string
	var days []int
	err := row.Scan(
		&c.ID, &c.Workspace, &typ, &status, &c.FromNumbers,
		&c.InitialMessageTemplate, &c.FollowUpTemplate, &c.AgentID, &c.OfferID,
		&startHour, &endHour, &tz, &days,
		&c.MessagesPerMinute, &c.MaxFollowUps, &c.FollowUpDelayHours, &c.SMSFallback,
	)
	if err != nil {
		return domain.Campaign{}, err
	}
	c.Type = domain.CampaignType(typ)
	c.Status = domain.CampaignStatus(status)
	if startHour != nil && endHour != nil {
		w := &domain.SendingWindow{StartHour: *startHour, EndHour: *endHour, Timezone: tz}
		for _, d := range days {
			w.Days = append(w.Days, time.Weekday(d))
		}
		c.SendingHours = w
	}
	return c, nil
}
