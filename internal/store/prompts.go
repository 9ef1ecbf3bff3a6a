package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlance-ai/parlance/internal/domain"
)

// PromptStore persists prompt versions and their bandit counters. Outcome
// writes go through [PromptStore.ApplyOutcome] so concurrent session ends
// serialize on the row instead of clobbering each other's counts.
type PromptStore struct {
	pool *pgxpool.Pool
}

const qInsertPromptVersion = `
INSERT INTO prompt_versions (
    id, agent_id, version_number, system_prompt, initial_greeting,
    temperature, is_active, arm_status, alpha, beta
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`

// Create inserts a new version. Alpha and Beta below 1 are lifted to the
// uniform prior.
func (s *PromptStore) Create(ctx context.Context, pv domain.PromptVersion) error {
	if pv.Alpha < 1 {
		pv.Alpha = 1
	}
	if pv.Beta < 1 {
		pv.Beta = 1
	}
	if pv.ArmStatus == "" {
		pv.ArmStatus = domain.ArmActive
	}
	_, err := s.pool.Exec(ctx, qInsertPromptVersion,
		pv.ID, pv.AgentID, pv.VersionNumber, pv.SystemPrompt, pv.InitialGreeting,
		pv.Temperature, pv.IsActive, string(pv.ArmStatus), pv.Alpha, pv.Beta,
	)
	if err != nil {
		return fmt.Errorf("prompt store: create %s: %w", pv.ID, err)
	}
	return nil
}

const qSelectPromptVersion = `
SELECT id, agent_id, version_number, system_prompt, initial_greeting,
       temperature, is_active, arm_status, alpha, beta,
       reward_count, total_calls, successful_calls, booked_appointments
FROM prompt_versions
`

// Get loads one version by id.
func (s *PromptStore) Get(ctx context.Context, id string) (domain.PromptVersion, error) {
	row := s.pool.QueryRow(ctx, qSelectPromptVersion+" WHERE id = $1", id)
	pv, err := scanPromptVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PromptVersion{}, ErrNotFound
	}
	if err != nil {
		return domain.PromptVersion{}, fmt.Errorf("prompt store: get %s: %w", id, err)
	}
	return pv, nil
}

// ActiveArms returns the agent's versions eligible for bandit selection:
// active rows whose arm status is 'active'.
func (s *PromptStore) ActiveArms(ctx context.Context, agentID string) ([]domain.PromptVersion, error) {
	const q = qSelectPromptVersion + `
WHERE agent_id = $1 AND is_active AND arm_status = 'active'
ORDER BY version_number`
	rows, err := s.pool.Query(ctx, q, agentID)
	if err != nil {
		return nil, fmt.Errorf("prompt store: active arms for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []domain.PromptVersion
	for rows.Next() {
		pv, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("prompt store: active arms for %s: %w", agentID, err)
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

const qApplyOutcome = `
UPDATE prompt_versions SET
    alpha = alpha + $2,
    beta = beta + $3,
    reward_count = reward_count + 1,
    total_calls = total_calls + 1,
    successful_calls = successful_calls + $4,
    booked_appointments = booked_appointments + $5
WHERE id = $1
RETURNING alpha, beta, reward_count, total_calls, successful_calls, booked_appointments
`

// ApplyOutcome folds one terminal call outcome into the version's counters
// atomically and returns the updated row.
func (s *PromptStore) ApplyOutcome(ctx context.Context, id string, outcome domain.CallOutcome) (domain.PromptVersion, error) {
	var dAlpha, dBeta, dSuccess, dBooked int
	if outcome.Success() {
		dAlpha, dSuccess = 1, 1
		if outcome == domain.OutcomeBookedAppointment {
			dBooked = 1
		}
	} else {
		dBeta = 1
	}

	pv := domain.PromptVersion{ID: id}
	err := s.pool.QueryRow(ctx, qApplyOutcome, id, dAlpha, dBeta, dSuccess, dBooked).Scan(
		&pv.Alpha, &pv.Beta, &pv.RewardCount, &pv.TotalCalls,
		&pv.SuccessfulCalls, &pv.BookedAppointments,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PromptVersion{}, ErrNotFound
	}
	if err != nil {
		return domain.PromptVersion{}, fmt.Errorf("prompt store: apply outcome to %s: %w", id, err)
	}
	return pv, nil
}

const qSetArmStatus = `UPDATE prompt_versions SET arm_status = $2 WHERE id = $1`

// SetArmStatus moves an arm between active, paused, and eliminated.
// Elimination is terminal; re-activating an eliminated arm is rejected.
func (s *PromptStore) SetArmStatus(ctx context.Context, id string, status domain.ArmStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("prompt store: set arm status: invalid status %q", status)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.ArmStatus == domain.ArmEliminated && status != domain.ArmEliminated {
		return fmt.Errorf("prompt store: arm %s is eliminated and cannot re-enter rotation", id)
	}
	if _, err := s.pool.Exec(ctx, qSetArmStatus, id, string(status)); err != nil {
		return fmt.Errorf("prompt store: set arm status %s: %w", id, err)
	}
	return nil
}

func scanPromptVersion(row pgx.Row) (domain.PromptVersion, error) {
	var pv domain.PromptVersion
	var armStatus string
	err := row.Scan(
		&pv.ID, &pv.AgentID, &pv.VersionNumber, &pv.SystemPrompt, &pv.InitialGreeting,
		&pv.Temperature, &pv.IsActive, &armStatus, &pv.Alpha, &pv.Beta,
		&pv.RewardCount, &pv.TotalCalls, &pv.SuccessfulCalls, &pv.BookedAppointments,
	)
	if err != nil {
		return domain.PromptVersion{}, err
	}
	pv.ArmStatus = domain.ArmStatus(armStatus)
	return pv, nil
}
