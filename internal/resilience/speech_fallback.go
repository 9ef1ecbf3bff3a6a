package resilience

import (
	"context"

	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// SpeechFallback implements [realtime.SpeechProvider] with automatic failover
// across multiple text-to-speech backends.
type SpeechFallback struct {
	group *FallbackGroup[realtime.SpeechProvider]
}

// Compile-time interface assertion.
var _ realtime.SpeechProvider = (*SpeechFallback)(nil)

// NewSpeechFallback creates a [SpeechFallback] with primary as the preferred
// backend.
func NewSpeechFallback(primary realtime.SpeechProvider, primaryName string, cfg FallbackConfig) *SpeechFallback {
	return &SpeechFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech provider as a fallback.
func (f *SpeechFallback) AddFallback(name string, provider realtime.SpeechProvider) {
	f.group.AddFallback(name, provider)
}

// ConnectSpeech opens a synthesis stream against the first healthy provider.
func (f *SpeechFallback) ConnectSpeech(ctx context.Context, voice string) (realtime.SpeechStream, error) {
	return ExecuteWithResult(f.group, func(p realtime.SpeechProvider) (realtime.SpeechStream, error) {
		return p.ConnectSpeech(ctx, voice)
	})
}
