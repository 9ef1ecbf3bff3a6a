package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles every sub-store over one connection pool.
type Store struct {
	pool *pgxpool.Pool

	Agents    *AgentStore
	Prompts   *PromptStore
	Contacts  *ContactStore
	Campaigns *CampaignStore
	Numbers   *NumberStore
	Anchors   *AnchorStore
}

// NewStore connects, pings, and migrates.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{
		pool:      pool,
		Agents:    &AgentStore{pool: pool},
		Prompts:   &PromptStore{pool: pool},
		Contacts:  &ContactStore{pool: pool},
		Campaigns: &CampaignStore{pool: pool},
		Numbers:   &NumberStore{pool: pool},
		Anchors:   &AnchorStore{pool: pool},
	}, nil
}

// Ping reports pool health. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
