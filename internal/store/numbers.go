package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoNumberAvailable is returned when every number in a campaign's pool has
// hit its daily cap.
var ErrNoNumberAvailable = errors.New("store: no sending number under its daily cap")

// DefaultWarmupLadder is the per-day send cap by number age: a freshly used
// number starts slow and ramps. The last entry applies to all later days.
var DefaultWarmupLadder = []int{20, 40, 80, 150, 250, 400}

// NumberStore tracks per-number daily send volume for the warm-up ladder.
type NumberStore struct {
	pool *pgxpool.Pool
}

const qNumberFirstUsed = `
INSERT INTO number_usage (number, first_used_on)
VALUES ($1, $2)
ON CONFLICT (number) DO UPDATE SET first_used_on = number_usage.first_used_on
RETURNING first_used_on
`

const qNumberSentToday = `
SELECT COALESCE(sent, 0) FROM number_sends WHERE number = $1 AND day = $2
`

const qNumberBumpSent = `
INSERT INTO number_sends (number, day, sent)
VALUES ($1, $2, 1)
ON CONFLICT (number, day) DO UPDATE SET sent = number_sends.sent + 1
`

// Reserve picks the first number in the pool still under its warm-up cap for
// today and counts the send against it. The ladder indexes by number age in
// days; a nil ladder uses [DefaultWarmupLadder].
func (s *NumberStore) Reserve(ctx context.Context, numbers []string, ladder []int) (string, error) {
	if len(ladder) == 0 {
		ladder = DefaultWarmupLadder
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("number store: reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, num := range numbers {
		var firstUsed time.Time
		if err := tx.QueryRow(ctx, qNumberFirstUsed, num, today).Scan(&firstUsed); err != nil {
			return "", fmt.Errorf("number store: first-used for %s: %w", num, err)
		}

		age := int(today.Sub(firstUsed.UTC().Truncate(24*time.Hour)).Hours() / 24)
		if age < 0 {
			age = 0
		}
		if age >= len(ladder) {
			age = len(ladder) - 1
		}
		limit := ladder[age]

		var sent int
		err := tx.QueryRow(ctx, qNumberSentToday, num, today).Scan(&sent)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("number store: sent-today for %s: %w", num, err)
		}
		if sent >= limit {
			continue
		}

		if _, err := tx.Exec(ctx, qNumberBumpSent, num, today); err != nil {
			return "", fmt.Errorf("number store: bump %s: %w", num, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("number store: reserve: %w", err)
		}
		return num, nil
	}

	return "", ErrNoNumberAvailable
}

// SentToday reports a number's send count for the current UTC day.
func (s *NumberStore) SentToday(ctx context.Context, number string) (int, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	var sent int
	err := s.pool.QueryRow(ctx, qNumberSentToday, number, today).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("number store: sent-today for %s: %w", number, err)
	}
	return sent, nil
}
