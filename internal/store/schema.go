// Package store is the PostgreSQL persistence layer: agents and their prompt
// versions, contacts, campaigns, campaign enrollment, per-number send
// accounting, and the per-call anchor rows that tie a carrier call id to its
// business context.
//
// All sub-stores share one [pgxpool.Pool]. [Migrate] creates every table via
// CREATE TABLE IF NOT EXISTS, so repeated startup is safe.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────
// Config plane — agents and prompt versions
// ─────────────────────────────────────────────────────────────────────────

const ddlAgents = `
CREATE TABLE IF NOT EXISTS agents (
    id                       TEXT         PRIMARY KEY,
    display_name             TEXT         NOT NULL,
    channel_mode             TEXT         NOT NULL DEFAULT 'voice',
    voice_mode               TEXT         NOT NULL DEFAULT 'realtime',
    voice_id                 TEXT         NOT NULL DEFAULT '',
    base_system_prompt       TEXT         NOT NULL,
    initial_greeting         TEXT         NOT NULL DEFAULT '',
    temperature              DOUBLE PRECISION NOT NULL DEFAULT 0.8,
    turn_detection_mode      TEXT         NOT NULL DEFAULT '',
    turn_detection_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
    silence_duration_ms      INT          NOT NULL DEFAULT 0,
    calendar_event_type_id   INT          NOT NULL DEFAULT 0,
    timezone                 TEXT         NOT NULL DEFAULT 'UTC',
    enabled_tools            TEXT[]       NOT NULL DEFAULT '{}',
    ivr_enabled              BOOLEAN      NOT NULL DEFAULT FALSE,
    ivr_goal                 TEXT         NOT NULL DEFAULT '',
    ivr_loop_threshold       DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at               TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlPromptVersions = `
CREATE TABLE IF NOT EXISTS prompt_versions (
    id                  TEXT         PRIMARY KEY,
    agent_id            TEXT         NOT NULL REFERENCES agents (id),
    version_number      INT          NOT NULL,
    system_prompt       TEXT         NOT NULL,
    initial_greeting    TEXT         NOT NULL DEFAULT '',
    temperature         DOUBLE PRECISION NOT NULL DEFAULT 0.8,
    is_active           BOOLEAN      NOT NULL DEFAULT TRUE,
    arm_status          TEXT         NOT NULL DEFAULT 'active',
    alpha               DOUBLE PRECISION NOT NULL DEFAULT 1,
    beta                DOUBLE PRECISION NOT NULL DEFAULT 1,
    reward_count        INT          NOT NULL DEFAULT 0,
    total_calls         INT          NOT NULL DEFAULT 0,
    successful_calls    INT          NOT NULL DEFAULT 0,
    booked_appointments INT          NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (agent_id, version_number)
);

CREATE INDEX IF NOT EXISTS idx_prompt_versions_agent
    ON prompt_versions (agent_id) WHERE is_active;
`

// ─────────────────────────────────────────────────────────────────────────
// CRM plane — contacts
// ─────────────────────────────────────────────────────────────────────────

const ddlContacts = `
CREATE TABLE IF NOT EXISTS contacts (
    id                 TEXT         PRIMARY KEY,
    workspace          TEXT         NOT NULL DEFAULT '',
    phone              TEXT         NOT NULL,
    first_name         TEXT         NOT NULL DEFAULT '',
    last_name          TEXT         NOT NULL DEFAULT '',
    company_name       TEXT         NOT NULL DEFAULT '',
    email              TEXT         NOT NULL DEFAULT '',
    opted_out          BOOLEAN      NOT NULL DEFAULT FALSE,
    first_contacted_at TIMESTAMPTZ,
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts (phone);
`

// ─────────────────────────────────────────────────────────────────────────
// Campaign plane
// ─────────────────────────────────────────────────────────────────────────

const ddlCampaigns = `
CREATE TABLE IF NOT EXISTS offers (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    discount    TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    terms       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS campaigns (
    id                       TEXT         PRIMARY KEY,
    workspace                TEXT         NOT NULL DEFAULT '',
    type                     TEXT         NOT NULL,
    status                   TEXT         NOT NULL DEFAULT 'draft',
    from_numbers             TEXT[]       NOT NULL DEFAULT '{}',
    initial_message_template TEXT         NOT NULL DEFAULT '',
    follow_up_template       TEXT         NOT NULL DEFAULT '',
    agent_id                 TEXT         NOT NULL DEFAULT '',
    offer_id                 TEXT         NOT NULL DEFAULT '',
    sending_start_hour       INT,
    sending_end_hour         INT,
    sending_timezone         TEXT         NOT NULL DEFAULT '',
    sending_days             INT[]        NOT NULL DEFAULT '{}',
    messages_per_minute      INT          NOT NULL DEFAULT 10,
    max_follow_ups           INT          NOT NULL DEFAULT 0,
    follow_up_delay_hours    INT          NOT NULL DEFAULT 24,
    sms_fallback             BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at               TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status);

CREATE TABLE IF NOT EXISTS campaign_contacts (
    campaign_id      TEXT         NOT NULL REFERENCES campaigns (id),
    contact_id       TEXT         NOT NULL REFERENCES contacts (id),
    status           TEXT         NOT NULL DEFAULT 'pending',
    priority         INT          NOT NULL DEFAULT 0,
    messages_sent    INT          NOT NULL DEFAULT 0,
    follow_ups_sent  INT          NOT NULL DEFAULT 0,
    next_follow_up_at TIMESTAMPTZ,
    call_attempts    INT          NOT NULL DEFAULT 0,
    last_error       TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (campaign_id, contact_id)
);

CREATE INDEX IF NOT EXISTS idx_campaign_contacts_pending
    ON campaign_contacts (campaign_id, priority DESC, created_at)
    WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_campaign_contacts_follow_up
    ON campaign_contacts (campaign_id, next_follow_up_at)
    WHERE next_follow_up_at IS NOT NULL;
`

// number_sends tracks per-number per-day volume for the warm-up ladder.
const ddlNumberSends = `
CREATE TABLE IF NOT EXISTS number_sends (
    number     TEXT NOT NULL,
    day        DATE NOT NULL,
    sent       INT  NOT NULL DEFAULT 0,
    PRIMARY KEY (number, day)
);

CREATE TABLE IF NOT EXISTS number_usage (
    number        TEXT PRIMARY KEY,
    first_used_on DATE NOT NULL
);
`

// ─────────────────────────────────────────────────────────────────────────
// Call plane — anchor rows
// ─────────────────────────────────────────────────────────────────────────

const ddlAnchors = `
CREATE TABLE IF NOT EXISTS anchor_messages (
    call_id           TEXT         PRIMARY KEY,
    agent_id          TEXT         NOT NULL,
    contact_id        TEXT         NOT NULL DEFAULT '',
    campaign_id       TEXT         NOT NULL DEFAULT '',
    direction         TEXT         NOT NULL,
    prompt_version_id TEXT         NOT NULL DEFAULT '',
    transcript        JSONB        NOT NULL DEFAULT '[]',
    booking_outcome   TEXT         NOT NULL DEFAULT '',
    outcome           TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at          TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_anchor_messages_campaign
    ON anchor_messages (campaign_id) WHERE campaign_id <> '';
`

// Migrate creates all tables and indexes. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{
		ddlAgents,
		ddlPromptVersions,
		ddlContacts,
		ddlCampaigns,
		ddlNumberSends,
		ddlAnchors,
	} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
