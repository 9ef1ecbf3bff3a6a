// Package session coordinates a single phone call end to end: it consumes
// the AI provider's event stream, relays synthesised audio toward the
// carrier, tracks the transcript, handles barge-in, navigates IVR menus via
// DTMF, and dispatches tool calls.
//
// Each session runs one event loop goroutine that owns all mutable call
// state. External inputs that arrive on other goroutines (carrier webhooks,
// machine-detection results) are posted onto a control channel and applied
// inside the loop, so the transcript, the IVR detector, and the DTMF scan
// position never need locking for correctness; a light mutex guards the few
// snapshot accessors.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/ivr"
	"github.com/parlance-ai/parlance/internal/observe"
	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// egressBuffer bounds the audio queue toward the carrier. At ~20 ms per
// chunk this is several seconds of speech.
const egressBuffer = 256

// ToolExecutor runs one named tool call and returns the JSON result.
type ToolExecutor interface {
	Execute(ctx context.Context, name, argsJSON string) string
}

// Config assembles a [Session].
type Config struct {
	CallID    string
	Agent     domain.Agent
	Version   domain.PromptVersion
	Contact   *domain.Contact
	Direction domain.Direction

	// Handle is the connected combined provider session.
	Handle realtime.SessionHandle

	// Speech is the TTS stream for hybrid mode; nil for combined mode. In
	// hybrid mode provider audio deltas are discarded and egress audio comes
	// from this stream instead.
	Speech realtime.SpeechStream

	// Opener, when non-empty, is injected as the first response prompt.
	Opener string

	Tools    ToolExecutor
	DTMF     DTMFSender
	Detector *ivr.Detector

	// DTMFCooldown and SpeechFlushIdle default to the package constants.
	DTMFCooldown    time.Duration
	SpeechFlushIdle time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Session is one live call. Create with [New], drive with [Run].
type Session struct {
	cfg      Config
	detector *ivr.Detector
	dtmf     *dtmfHandler
	tts      *speechBuffer
	metrics  *observe.Metrics

	egress chan []byte
	ctrl   chan func()
	done   chan struct{}

	// Event-loop-owned state.
	isInterrupted bool
	agentText     strings.Builder
	startedAt     time.Time

	mu         sync.RWMutex
	state      domain.CallState
	transcript []domain.TranscriptEntry
	closeOnce  sync.Once
}

// New creates a session in the initiated state.
func New(cfg Config) (*Session, error) {
	if cfg.CallID == "" {
		return nil, errors.New("session: call id is required")
	}
	if cfg.Handle == nil {
		return nil, errors.New("session: provider handle is required")
	}

	det := cfg.Detector
	if det == nil {
		dcfg := ivr.Config{}
		if cfg.Agent.IVRLoopThreshold > 0 {
			dcfg.LoopThreshold = cfg.Agent.IVRLoopThreshold
		}
		det = ivr.NewDetector(dcfg)
	}

	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	s := &Session{
		cfg:      cfg,
		detector: det,
		dtmf:     newDTMFHandler(cfg.DTMF, cfg.CallID, cfg.DTMFCooldown),
		metrics:  m,
		egress:   make(chan []byte, egressBuffer),
		ctrl:     make(chan func(), 16),
		done:     make(chan struct{}),
		state:    domain.CallInitiated,
	}
	if cfg.Speech != nil {
		s.tts = newSpeechBuffer(cfg.Speech, cfg.SpeechFlushIdle)
	}
	return s, nil
}

// Egress is the audio stream toward the carrier: PCM16 24 kHz in combined
// mode, μ-law 8 kHz in hybrid mode. The channel is closed when the session
// ends.
func (s *Session) Egress() <-chan []byte { return s.egress }

// CallID returns the carrier call-control id.
func (s *Session) CallID() string { return s.cfg.CallID }

// State returns the current lifecycle state.
func (s *Session) State() domain.CallState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transcript returns a copy of the transcript so far.
func (s *Session) Transcript() []domain.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// IVRStatus returns a snapshot of the menu-navigation state.
func (s *Session) IVRStatus() ivr.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detector.Snapshot()
}

// NotifyRinging records the carrier's ringing transition.
func (s *Session) NotifyRinging() { s.setState(domain.CallRinging) }

// NotifyAnswered records the carrier's answer transition.
func (s *Session) NotifyAnswered() { s.setState(domain.CallAnswered) }

// NotifyMachineDetected seeds the detector with the carrier's answering
// machine verdict. Safe to call from any goroutine.
func (s *Session) NotifyMachineDetected() {
	s.post(func() {
		s.detector.SeedVoicemail()
		s.metrics.RecordModeSwitch(context.Background(), string(ivr.ModeVoicemail))
	})
}

// Close ends the session: the provider socket is closed, which terminates
// the event loop. Idempotent and safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.cfg.Handle.Close(); err != nil {
			slog.Debug("session: provider close", "call_id", s.cfg.CallID, "err", err)
		}
		if s.cfg.Speech != nil {
			_ = s.cfg.Speech.Close()
		}
	})
}

// Done is closed when Run has finished and all state is final.
func (s *Session) Done() <-chan struct{} { return s.done }

// post schedules f onto the event loop. Drops with a warning if the loop is
// gone or the control queue is full; callers are fire-and-forget.
func (s *Session) post(f func()) {
	select {
	case s.ctrl <- f:
	case <-s.done:
	default:
		slog.Warn("session: control queue full", "call_id", s.cfg.CallID)
	}
}

// Run executes the event loop until the provider stream ends or ctx is
// cancelled. It returns the error that terminated the session, or nil for a
// clean close. The final state is COMPLETED on clean closure and FAILED
// otherwise.
func (s *Session) Run(ctx context.Context) error {
	s.setState(domain.CallStreaming)
	s.startedAt = time.Now()
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.metrics.RecordCallStarted(ctx, string(s.cfg.Direction), s.cfg.Agent.ID)

	// Hybrid: forward synthesised TTS audio to egress.
	var ttsDone chan struct{}
	if s.cfg.Speech != nil {
		ttsDone = make(chan struct{})
		go s.pumpSpeech(ttsDone)
	}

	if s.cfg.Opener != "" {
		if err := s.cfg.Handle.InjectText("system",
			"Open the call with exactly this line: "+s.cfg.Opener); err != nil {
			slog.Warn("session: opener inject failed", "call_id", s.cfg.CallID, "err", err)
		} else if err := s.cfg.Handle.CreateResponse(); err != nil {
			slog.Warn("session: opener response failed", "call_id", s.cfg.CallID, "err", err)
		}
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			s.Close()
			// Keep draining until the provider acknowledges the close so
			// the events goroutine can exit.
			for range s.cfg.Handle.Events() {
			}
			break loop

		case f := <-s.ctrl:
			f()

		case evt, ok := <-s.cfg.Handle.Events():
			if !ok {
				runErr = s.cfg.Handle.Err()
				break loop
			}
			s.handleEvent(ctx, evt)
		}
	}

	s.finish(ctx, runErr, ttsDone)
	return runErr
}

// finish flushes final state and transitions to a terminal state.
func (s *Session) finish(ctx context.Context, runErr error, ttsDone chan struct{}) {
	s.flushAgentEntry()
	s.Close()
	if ttsDone != nil {
		<-ttsDone
	}
	close(s.egress)

	final := domain.CallCompleted
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		final = domain.CallFailed
	}
	s.setState(final)
	close(s.done)

	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.RecordCallEnded(ctx, string(final))
	s.metrics.CallDuration.Record(ctx, time.Since(s.startedAt).Seconds())

	slog.Info("session ended",
		"call_id", s.cfg.CallID,
		"state", final,
		"duration", time.Since(s.startedAt).Round(time.Millisecond),
		"transcript_entries", len(s.Transcript()),
		"ivr_mode", s.detector.Mode(),
	)
}

// handleEvent processes one provider event on the loop goroutine.
func (s *Session) handleEvent(ctx context.Context, evt realtime.Event) {
	switch evt.Type {
	case realtime.EventAudioDelta:
		s.onAudioDelta(evt.Audio)

	case realtime.EventTranscriptDelta:
		s.onTranscriptDelta(ctx, evt.Text)

	case realtime.EventUserTranscript:
		s.onUserTranscript(ctx, evt.Text)

	case realtime.EventSpeechStarted:
		s.onBargeIn(ctx)

	case realtime.EventResponseCreated:
		s.isInterrupted = false
		s.agentText.Reset()
		s.dtmf.ResetScan()

	case realtime.EventResponseDone:
		if evt.Status == realtime.StatusCancelled {
			s.agentText.Reset()
			if s.tts != nil {
				s.tts.Reset()
			}
		} else {
			s.flushAgentEntry()
			if s.tts != nil {
				s.tts.Flush()
			}
		}

	case realtime.EventFunctionCall:
		s.onFunctionCall(ctx, evt)

	case realtime.EventError:
		s.metrics.RecordProviderError(ctx, "realtime", "event")
		slog.Warn("session: provider error event", "call_id", s.cfg.CallID, "err", evt.Err)
	}
}

func (s *Session) onAudioDelta(chunk []byte) {
	if s.isInterrupted || s.tts != nil {
		// Dropped while interrupted; discarded entirely in hybrid mode
		// where the TTS stream is the audio source.
		return
	}
	if s.detector.Mode() == ivr.ModeIVR {
		// Never talk over a menu; navigation happens via DTMF only.
		return
	}
	s.sendEgress(chunk)
}

func (s *Session) onTranscriptDelta(ctx context.Context, delta string) {
	s.agentText.WriteString(delta)

	full := s.agentText.String()
	for _, digits := range s.dtmf.Scan(ctx, full) {
		s.detector.RecordDTMFSent(digits)
		s.metrics.DTMFSent.Add(ctx, 1)
		slog.Info("session: dtmf sent", "call_id", s.cfg.CallID, "digits", digits)
	}

	if s.tts != nil && !s.isInterrupted {
		if clean := ivr.StripDTMF(delta); clean != "" {
			s.tts.Add(clean)
		}
	}
}

func (s *Session) onUserTranscript(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.appendTranscript(domain.TranscriptEntry{Role: "user", Text: text})

	if !s.cfg.Agent.IVREnabled {
		return
	}
	obs := s.detector.ObserveRemote(text)
	if obs.Changed {
		s.metrics.RecordModeSwitch(ctx, string(obs.Mode))
		slog.Info("session: ivr mode switch", "call_id", s.cfg.CallID, "mode", obs.Mode)
	}
	if obs.FailedDTMF != "" {
		slog.Info("session: dtmf did not advance menu", "call_id", s.cfg.CallID, "digits", obs.FailedDTMF)
	}
	if obs.LoopDetected {
		s.injectNavigationHint(obs)
	}
}

// injectNavigationHint tells the model the menu is repeating and which keys
// are already spent.
func (s *Session) injectNavigationHint(obs ivr.Observation) {
	status := s.detector.Snapshot()
	hint := "The phone menu is repeating, so your last key press did not work. "
	if len(status.FailedDTMF) > 0 {
		hint += fmt.Sprintf("Keys that did not work: %s. ", strings.Join(status.FailedDTMF, ", "))
	}
	if len(status.AttemptedDTMF) > 0 {
		hint += fmt.Sprintf("Keys already tried: %s. ", strings.Join(status.AttemptedDTMF, ", "))
	}
	hint += "Listen to the options again and press a DIFFERENT key."

	if err := s.cfg.Handle.InjectText("system", hint); err != nil {
		slog.Warn("session: navigation hint inject failed", "call_id", s.cfg.CallID, "err", err)
		return
	}
	if err := s.cfg.Handle.CreateResponse(); err != nil {
		slog.Warn("session: navigation hint response failed", "call_id", s.cfg.CallID, "err", err)
	}
}

// onBargeIn suppresses agent output the moment the caller starts speaking.
// The local drain is authoritative: even if the provider keeps emitting
// deltas for a few hundred milliseconds, they are dropped while interrupted.
func (s *Session) onBargeIn(ctx context.Context) {
	s.isInterrupted = true
	s.drainEgress()
	if s.tts != nil {
		s.tts.Reset()
	}
	if err := s.cfg.Handle.CancelResponse(); err != nil {
		slog.Warn("session: response cancel failed", "call_id", s.cfg.CallID, "err", err)
	}
	s.metrics.BargeIns.Add(ctx, 1)
}

// onFunctionCall dispatches the tool off the loop so audio relay and
// barge-in stay responsive while the tool runs; the executor bounds the
// call's duration.
func (s *Session) onFunctionCall(ctx context.Context, evt realtime.Event) {
	if s.cfg.Tools == nil {
		_ = s.cfg.Handle.SubmitToolResult(evt.CallID,
			`{"success":false,"error":"No tools are available on this call"}`)
		_ = s.cfg.Handle.CreateResponse()
		return
	}

	go func() {
		out := s.cfg.Tools.Execute(ctx, evt.Name, evt.Arguments)
		if err := s.cfg.Handle.SubmitToolResult(evt.CallID, out); err != nil {
			slog.Warn("session: tool result submit failed",
				"call_id", s.cfg.CallID, "tool", evt.Name, "err", err)
			return
		}
		if err := s.cfg.Handle.CreateResponse(); err != nil {
			slog.Warn("session: post-tool response failed",
				"call_id", s.cfg.CallID, "tool", evt.Name, "err", err)
		}
	}()
}

// flushAgentEntry appends the accumulated response text as one transcript
// entry, with navigation tags stripped.
func (s *Session) flushAgentEntry() {
	text := ivr.StripDTMF(s.agentText.String())
	s.agentText.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}
	s.appendTranscript(domain.TranscriptEntry{Role: "agent", Text: text})
}

// pumpSpeech forwards hybrid TTS audio to egress until the stream closes.
func (s *Session) pumpSpeech(done chan struct{}) {
	defer close(done)
	for chunk := range s.cfg.Speech.Audio() {
		// isInterrupted is only approximate across goroutines; the buffer
		// Reset on barge-in stops new text, and this check stops most
		// already-synthesised audio.
		if s.isInterrupted || s.detector.Mode() == ivr.ModeIVR {
			continue
		}
		s.sendEgress(chunk)
	}
}

func (s *Session) sendEgress(chunk []byte) {
	select {
	case s.egress <- chunk:
	default:
		slog.Warn("session: egress queue full, dropping audio", "call_id", s.cfg.CallID)
	}
}

func (s *Session) drainEgress() {
	for {
		select {
		case <-s.egress:
		default:
			return
		}
	}
}

func (s *Session) appendTranscript(e domain.TranscriptEntry) {
	s.mu.Lock()
	s.transcript = append(s.transcript, e)
	s.mu.Unlock()
}

// setState advances the lifecycle state. Terminal states are sticky and
// backwards transitions are ignored, so late carrier webhooks cannot revive
// a finished call.
func (s *Session) setState(next domain.CallState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || stateRank(next) <= stateRank(s.state) {
		return
	}
	s.state = next
}

func stateRank(st domain.CallState) int {
	switch st {
	case domain.CallInitiated:
		return 0
	case domain.CallRinging:
		return 1
	case domain.CallAnswered:
		return 2
	case domain.CallStreaming:
		return 3
	case domain.CallCompleted, domain.CallFailed:
		return 4
	}
	return -1
}
