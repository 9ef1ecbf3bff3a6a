package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlance-ai/parlance/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// AgentStore persists agent configuration.
type AgentStore struct {
	pool *pgxpool.Pool
}

const qUpsertAgent = `
INSERT INTO agents (
    id, display_name, channel_mode, voice_mode, voice_id,
    base_system_prompt, initial_greeting, temperature,
    turn_detection_mode, turn_detection_threshold, silence_duration_ms,
    calendar_event_type_id, timezone, enabled_tools,
    ivr_enabled, ivr_goal, ivr_loop_threshold
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    channel_mode = EXCLUDED.channel_mode,
    voice_mode = EXCLUDED.voice_mode,
    voice_id = EXCLUDED.voice_id,
    base_system_prompt = EXCLUDED.base_system_prompt,
    initial_greeting = EXCLUDED.initial_greeting,
    temperature = EXCLUDED.temperature,
    turn_detection_mode = EXCLUDED.turn_detection_mode,
    turn_detection_threshold = EXCLUDED.turn_detection_threshold,
    silence_duration_ms = EXCLUDED.silence_duration_ms,
    calendar_event_type_id = EXCLUDED.calendar_event_type_id,
    timezone = EXCLUDED.timezone,
    enabled_tools = EXCLUDED.enabled_tools,
    ivr_enabled = EXCLUDED.ivr_enabled,
    ivr_goal = EXCLUDED.ivr_goal,
    ivr_loop_threshold = EXCLUDED.ivr_loop_threshold,
    updated_at = now()
`

// Upsert writes an agent, replacing any previous configuration. Used by the
// YAML seed loader at startup.
func (s *AgentStore) Upsert(ctx context.Context, a domain.Agent) error {
	_, err := s.pool.Exec(ctx, qUpsertAgent,
		a.ID, a.DisplayName, string(a.ChannelMode), string(a.VoiceMode), a.VoiceID,
		a.BaseSystemPrompt, a.InitialGreeting, a.Temperature,
		a.TurnDetectionMode, a.TurnDetectionThreshold, a.SilenceDurationMs,
		a.CalendarEventTypeID, a.Timezone, a.EnabledTools,
		a.IVREnabled, a.IVRGoal, a.IVRLoopThreshold,
	)
	if err != nil {
		return fmt.Errorf("agent store: upsert %s: %w", a.ID, err)
	}
	return nil
}

const qSelectAgent = `
SELECT id, display_name, channel_mode, voice_mode, voice_id,
       base_system_prompt, initial_greeting, temperature,
       turn_detection_mode, turn_detection_threshold, silence_duration_ms,
       calendar_event_type_id, timezone, enabled_tools,
       ivr_enabled, ivr_goal, ivr_loop_threshold
FROM agents
`

// Get loads one agent by id.
func (s *AgentStore) Get(ctx context.Context, id string) (domain.Agent, error) {
	row := s.pool.QueryRow(ctx, qSelectAgent+" WHERE id = $1", id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, ErrNotFound
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("agent store: get %s: %w", id, err)
	}
	return a, nil
}

// List returns every agent, ordered by id.
func (s *AgentStore) List(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.pool.Query(ctx, qSelectAgent+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("agent store: list: %w", err)
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("agent store: list: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	var channelMode, voiceMode string
	err := row.Scan(
		&a.ID, &a.DisplayName, &channelMode, &voiceMode, &a.VoiceID,
		&a.BaseSystemPrompt, &a.InitialGreeting, &a.Temperature,
		&a.TurnDetectionMode, &a.TurnDetectionThreshold, &a.SilenceDurationMs,
		&a.CalendarEventTypeID, &a.Timezone, &a.EnabledTools,
		&a.IVREnabled, &a.IVRGoal, &a.IVRLoopThreshold,
	)
	if err != nil {
		return domain.Agent{}, err
	}
	a.ChannelMode = domain.ChannelMode(channelMode)
	a.VoiceMode = domain.VoiceMode(voiceMode)
	return a, nil
}
