package campaign

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const optOutKey = "parlance:optout"

// OptOutCache is a Redis set of opted-out phone numbers. The database row is
// authoritative; the cache exists so the dispatcher can skip a number in the
// window between a STOP reply arriving and the claim queries catching up.
type OptOutCache struct {
	rdb redis.UniversalClient
}

// NewOptOutCache wraps a Redis client.
func NewOptOutCache(rdb redis.UniversalClient) *OptOutCache {
	return &OptOutCache{rdb: rdb}
}

// Add records a phone number as opted out.
func (c *OptOutCache) Add(ctx context.Context, phone string) error {
	if err := c.rdb.SAdd(ctx, optOutKey, phone).Err(); err != nil {
		return fmt.Errorf("campaign: opt-out cache add: %w", err)
	}
	return nil
}

// Contains reports whether the number is in the cache. Redis errors are
// returned so the caller can decide to fall back on the database flag.
func (c *OptOutCache) Contains(ctx context.Context, phone string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, optOutKey, phone).Result()
	if err != nil {
		return false, fmt.Errorf("campaign: opt-out cache check: %w", err)
	}
	return ok, nil
}
