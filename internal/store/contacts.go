package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlance-ai/parlance/internal/domain"
)

// ContactStore persists contacts.
type ContactStore struct {
	pool *pgxpool.Pool
}

const qUpsertContact = `
INSERT INTO contacts (id, workspace, phone, first_name, last_name, company_name, email, opted_out)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
    workspace = EXCLUDED.workspace,
    phone = EXCLUDED.phone,
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    company_name = EXCLUDED.company_name,
    email = EXCLUDED.email,
    opted_out = contacts.opted_out OR EXCLUDED.opted_out
`

// Upsert writes a contact. Opt-out is monotonic: an upsert can set it but
// never clear it.
func (s *ContactStore) Upsert(ctx context.Context, c domain.Contact) error {
	_, err := s.pool.Exec(ctx, qUpsertContact,
		c.ID, c.Workspace, c.Phone, c.FirstName, c.LastName, c.CompanyName, c.Email, c.OptedOut,
	)
	if err != nil {
		return fmt.Errorf("contact store: upsert %s: %w", c.ID, err)
	}
	return nil
}

const qSelectContact = `
SELECT id, workspace, phone, first_name, last_name, company_name, email,
       opted_out, first_contacted_at
FROM contacts
`

// Get loads one contact by id.
func (s *ContactStore) Get(ctx context.Context, id string) (domain.Contact, error) {
	row := s.pool.QueryRow(ctx, qSelectContact+" WHERE id = $1", id)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contact{}, ErrNotFound
	}
	if err != nil {
		return domain.Contact{}, fmt.Errorf("contact store: get %s: %w", id, err)
	}
	return c, nil
}

// GetByPhone looks a contact up by E.164 number. Used when a reply or an
// inbound call arrives with only a phone number attached.
func (s *ContactStore) GetByPhone(ctx context.Context, phone string) (domain.Contact, error) {
	row := s.pool.QueryRow(ctx, qSelectContact+" WHERE phone = $1 ORDER BY created_at LIMIT 1", phone)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contact{}, ErrNotFound
	}
	if err != nil {
		return domain.Contact{}, fmt.Errorf("contact store: get by phone: %w", err)
	}
	return c, nil
}

const qOptOut = `
UPDATE contacts SET opted_out = TRUE WHERE phone = $1
`

const qOptOutEnrollments = `
UPDATE campaign_contacts cc SET status = 'opted_out'
FROM contacts c
WHERE cc.contact_id = c.id AND c.phone = $1
  AND cc.status NOT IN ('opted_out', 'failed', 'completed')
`

// OptOut marks every contact with the phone number as opted out and halts
// their non-terminal campaign enrollments.
func (s *ContactStore) OptOut(ctx context.Context, phone string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("contact store: opt out: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, qOptOut, phone); err != nil {
		return fmt.Errorf("contact store: opt out: %w", err)
	}
	if _, err := tx.Exec(ctx, qOptOutEnrollments, phone); err != nil {
		return fmt.Errorf("contact store: opt out enrollments: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("contact store: opt out: %w", err)
	}
	return nil
}

const qMarkFirstContacted = `
UPDATE contacts SET first_contacted_at = now()
WHERE id = $1 AND first_contacted_at IS NULL
`

// MarkFirstContacted stamps the first outreach time once.
func (s *ContactStore) MarkFirstContacted(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, qMarkFirstContacted, id); err != nil {
		return fmt.Errorf("contact store: mark first contacted %s: %w", id, err)
	}
	return nil
}

func scanContact(row pgx.Row) (domain.Contact, error) {
	var c domain.Contact
	err := row.Scan(
		&c.ID, &c.Workspace, &c.Phone, &c.FirstName, &c.LastName,
		&c.CompanyName, &c.Email, &c.OptedOut, &c.FirstContactedAt,
	)
	return c, err
}
