package resilience

import (
	"context"

	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// RealtimeFallback implements [realtime.Provider] with automatic failover
// across multiple realtime backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback is
// tried.
//
// Only the connection attempt is covered by failover; once a session is
// established, mid-session errors terminate that session as usual.
type RealtimeFallback struct {
	group *FallbackGroup[realtime.Provider]
}

// Compile-time interface assertion.
var _ realtime.Provider = (*RealtimeFallback)(nil)

// NewRealtimeFallback creates a [RealtimeFallback] with primary as the
// preferred backend.
func NewRealtimeFallback(primary realtime.Provider, primaryName string, cfg FallbackConfig) *RealtimeFallback {
	return &RealtimeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional realtime provider as a fallback.
func (f *RealtimeFallback) AddFallback(name string, provider realtime.Provider) {
	f.group.AddFallback(name, provider)
}

// Connect opens a session against the first healthy provider.
func (f *RealtimeFallback) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p realtime.Provider) (realtime.SessionHandle, error) {
		return p.Connect(ctx, cfg)
	})
}
