package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// DefaultSpeechFlushIdle is how long the hybrid TTS buffer waits after the
// last transcript delta before flushing a sentence fragment.
const DefaultSpeechFlushIdle = 150 * time.Millisecond

// speechBuffer batches agent transcript deltas for the hybrid TTS stream.
// Text is flushed at sentence-end punctuation, or after a short idle gap,
// whichever comes first — long enough to keep prosody intact, short enough
// not to add perceptible latency.
//
// Add runs on the event loop; the idle timer fires on its own goroutine, so
// the buffer is internally locked.
type speechBuffer struct {
	stream realtime.SpeechStream
	idle   time.Duration

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
}

func newSpeechBuffer(stream realtime.SpeechStream, idle time.Duration) *speechBuffer {
	if idle <= 0 {
		idle = DefaultSpeechFlushIdle
	}
	return &speechBuffer{stream: stream, idle: idle}
}

// Add appends one transcript delta.
func (b *speechBuffer) Add(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.WriteString(text)

	if endsSentence(b.buf.String()) {
		b.flushLocked()
		return
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.idle, b.Flush)
}

// Flush synthesises everything buffered so far.
func (b *speechBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Reset discards buffered text without synthesising it (barge-in).
func (b *speechBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	b.buf.Reset()
}

func (b *speechBuffer) flushLocked() {
	b.stopTimerLocked()
	text := b.buf.String()
	b.buf.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := b.stream.SendText(text); err != nil {
		slog.Warn("session: tts send failed", "err", err)
		return
	}
	if err := b.stream.Flush(); err != nil {
		slog.Warn("session: tts flush failed", "err", err)
	}
}

func (b *speechBuffer) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// endsSentence reports whether text ends at a sentence boundary.
func endsSentence(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
