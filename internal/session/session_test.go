package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/ivr"
	"github.com/parlance-ai/parlance/pkg/provider/realtime"
	rtmock "github.com/parlance-ai/parlance/pkg/provider/realtime/mock"
)

const testMenu = "Thank you for calling. For sales press 1, for support press 2."

// recordingDTMF captures carrier DTMF sends.
type recordingDTMF struct {
	calls []string
}

func (r *recordingDTMF) SendDTMF(_ context.Context, _, digits string, _ int) error {
	r.calls = append(r.calls, digits)
	return nil
}

// stubExecutor returns a fixed result for every tool call.
type stubExecutor struct {
	result string
}

func (s *stubExecutor) Execute(_ context.Context, _, _ string) string { return s.result }

type fixture struct {
	session  *Session
	provider *rtmock.Session
	dtmf     *recordingDTMF
	runErr   chan error
}

// startSession boots a session over a scripted provider and runs its loop.
func startSession(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	provider := rtmock.NewSession()
	dtmf := &recordingDTMF{}
	cfg := Config{
		CallID: "C1",
		Agent: domain.Agent{
			ID:          "jess",
			DisplayName: "Jess",
			IVREnabled:  true,
		},
		Direction:    domain.DirectionInbound,
		Handle:       provider,
		DTMF:         dtmf,
		DTMFCooldown: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	f := &fixture{session: s, provider: provider, dtmf: dtmf, runErr: errCh}
	t.Cleanup(func() {
		provider.Finish()
		f.wait(t)
	})
	return f
}

// wait blocks until the event loop has exited.
func (f *fixture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

// sync emits a throwaway user transcript and waits for it to land, proving
// every earlier event has been processed.
var syncSeq int

func (f *fixture) sync(t *testing.T) {
	t.Helper()
	syncSeq++
	marker := fmt.Sprintf("mm %d", syncSeq) // below the classifier's length floor
	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: marker})
	waitFor(t, func() bool {
		tr := f.session.Transcript()
		return len(tr) > 0 && tr[len(tr)-1].Text == marker
	}, "sync marker not processed")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// drainEgress consumes everything currently queued toward the carrier.
func (f *fixture) drainEgress() int {
	n := 0
	for {
		select {
		case _, ok := <-f.session.Egress():
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func TestRun_TranscriptAccumulation(t *testing.T) {
	f := startSession(t, nil)

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: "Hello "})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: "there."})
	f.provider.Emit(realtime.Event{Type: realtime.EventResponseDone, Status: realtime.StatusCompleted})
	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: "Hi, I want to book an appointment"})
	f.sync(t)

	tr := f.session.Transcript()
	if len(tr) < 2 {
		t.Fatalf("transcript = %+v, want at least agent + user entries", tr)
	}
	if tr[0].Role != "agent" || tr[0].Text != "Hello there." {
		t.Errorf("first entry = %+v, want the concatenated agent response", tr[0])
	}
	if tr[1].Role != "user" || !strings.Contains(tr[1].Text, "book an appointment") {
		t.Errorf("second entry = %+v, want the user line", tr[1])
	}
}

func TestRun_CancelledResponseNotSaved(t *testing.T) {
	f := startSession(t, nil)

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: "As I was say"})
	f.provider.Emit(realtime.Event{Type: realtime.EventResponseDone, Status: realtime.StatusCancelled})
	f.sync(t)

	for _, e := range f.session.Transcript() {
		if e.Role == "agent" {
			t.Errorf("cancelled response produced agent entry %+v", e)
		}
	}
}

func TestRun_BargeIn(t *testing.T) {
	f := startSession(t, nil)

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	for i := 0; i < 5; i++ {
		f.provider.Emit(realtime.Event{Type: realtime.EventAudioDelta, Audio: []byte{1, 2, 3}})
	}
	f.sync(t)
	if got := f.drainEgress(); got != 5 {
		t.Fatalf("egress before barge-in = %d frames, want 5", got)
	}

	f.provider.Emit(realtime.Event{Type: realtime.EventSpeechStarted})
	f.sync(t)
	if f.provider.CancelCount() != 1 {
		t.Errorf("cancel count = %d, want 1", f.provider.CancelCount())
	}

	// Provider keeps emitting after the barge-in; all of it must be dropped.
	for i := 0; i < 20; i++ {
		f.provider.Emit(realtime.Event{Type: realtime.EventAudioDelta, Audio: []byte{9}})
	}
	f.sync(t)
	if got := f.drainEgress(); got != 0 {
		t.Errorf("egress after barge-in = %d frames, want 0", got)
	}

	// A new response clears the interruption.
	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	for i := 0; i < 3; i++ {
		f.provider.Emit(realtime.Event{Type: realtime.EventAudioDelta, Audio: []byte{7}})
	}
	f.sync(t)
	if got := f.drainEgress(); got != 3 {
		t.Errorf("egress after new response = %d frames, want 3", got)
	}
}

func TestRun_DTMFFromTranscript(t *testing.T) {
	f := startSession(t, nil)

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: "I'll press one. <dtmf>1</dtmf>"})
	f.sync(t)
	// Rescanning the same accumulated text must not resend.
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: " Done."})
	f.sync(t)

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: "Now two. <dtmf>2</dtmf>"})
	f.sync(t)

	waitFor(t, func() bool { return len(f.dtmf.calls) == 2 }, "expected two DTMF sends")
	if f.dtmf.calls[0] != "1" || f.dtmf.calls[1] != "2" {
		t.Errorf("dtmf sends = %v, want [1 2]", f.dtmf.calls)
	}
}

func TestRun_DTMFCooldownBlocksBurst(t *testing.T) {
	f := startSession(t, func(cfg *Config) {
		cfg.DTMFCooldown = time.Minute
	})

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta,
		Text: "<dtmf>1</dtmf> and also <dtmf>2</dtmf>"})
	f.sync(t)

	if len(f.dtmf.calls) != 1 || f.dtmf.calls[0] != "1" {
		t.Errorf("dtmf sends = %v, want only [1] within the cooldown", f.dtmf.calls)
	}
}

func TestRun_ToolDispatch(t *testing.T) {
	f := startSession(t, func(cfg *Config) {
		cfg.Tools = &stubExecutor{result: `{"success":true,"slots":[]}`}
	})

	f.provider.Emit(realtime.Event{
		Type:      realtime.EventFunctionCall,
		CallID:    "fc-1",
		Name:      "check_availability",
		Arguments: `{"start_date":"2025-01-13"}`,
	})

	waitFor(t, func() bool { return len(f.provider.ToolResults()) == 1 }, "tool result not submitted")
	res := f.provider.ToolResults()[0]
	if res.CallID != "fc-1" || res.Output != `{"success":true,"slots":[]}` {
		t.Errorf("tool result = %+v", res)
	}
	waitFor(t, func() bool { return f.provider.CreateCount() >= 1 }, "no response requested after tool")
}

func TestRun_IVRLatchAndAudioSuppression(t *testing.T) {
	f := startSession(t, nil)

	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: testMenu})
	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: testMenu})
	f.sync(t)

	if got := f.session.IVRStatus().Mode; got != ivr.ModeIVR {
		t.Fatalf("mode = %v, want ivr after two menu transcripts", got)
	}

	// No agent audio toward a detected menu.
	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventAudioDelta, Audio: []byte{1}})
	f.sync(t)
	if got := f.drainEgress(); got != 0 {
		t.Errorf("egress frames to an IVR = %d, want 0", got)
	}
}

func TestRun_MenuLoopInjectsNavigationHint(t *testing.T) {
	f := startSession(t, nil)

	// The second identical menu both latches IVR mode and completes a loop.
	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: testMenu})
	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: testMenu})
	f.sync(t)

	waitFor(t, func() bool { return len(f.provider.InjectedTexts()) >= 1 }, "no navigation hint injected")
	hint := f.provider.InjectedTexts()[0]
	if hint.Role != "system" || !strings.Contains(hint.Text, "DIFFERENT key") {
		t.Errorf("hint = %+v, want a system message asking for a different key", hint)
	}
}

func TestRun_IVRDisabledSkipsDetector(t *testing.T) {
	f := startSession(t, func(cfg *Config) {
		cfg.Agent.IVREnabled = false
	})

	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: testMenu})
	f.provider.Emit(realtime.Event{Type: realtime.EventUserTranscript, Text: testMenu})
	f.sync(t)

	if got := f.session.IVRStatus().Mode; got != ivr.ModeUnknown {
		t.Errorf("mode = %v, want unknown when IVR handling is disabled", got)
	}
}

func TestRun_MachineDetectionSeedsVoicemail(t *testing.T) {
	f := startSession(t, nil)

	f.session.NotifyMachineDetected()
	waitFor(t, func() bool { return f.session.IVRStatus().Mode == ivr.ModeVoicemail },
		"machine detection did not latch voicemail")
}

func TestRun_Opener(t *testing.T) {
	f := startSession(t, func(cfg *Config) {
		cfg.Opener = "Thanks for calling Acme, this is Jess!"
	})

	waitFor(t, func() bool { return len(f.provider.InjectedTexts()) >= 1 }, "opener not injected")
	first := f.provider.InjectedTexts()[0]
	if first.Role != "system" || !strings.Contains(first.Text, "this is Jess") {
		t.Errorf("opener injection = %+v", first)
	}
	waitFor(t, func() bool { return f.provider.CreateCount() >= 1 }, "no response requested for opener")
}

func TestRun_HybridSpeech(t *testing.T) {
	stream := rtmock.NewSpeechStream()
	f := startSession(t, func(cfg *Config) {
		cfg.Speech = stream
	})

	f.provider.Emit(realtime.Event{Type: realtime.EventResponseCreated})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: "Hello"})
	f.provider.Emit(realtime.Event{Type: realtime.EventTranscriptDelta, Text: " world."})
	f.sync(t)

	waitFor(t, func() bool { return len(stream.Texts()) >= 1 }, "sentence not flushed to TTS")
	joined := strings.Join(stream.Texts(), "")
	if joined != "Hello world." {
		t.Errorf("tts text = %q, want %q", joined, "Hello world.")
	}

	// Provider audio deltas are discarded in hybrid mode; TTS audio flows.
	f.provider.Emit(realtime.Event{Type: realtime.EventAudioDelta, Audio: []byte{1}})
	f.sync(t)
	if got := f.drainEgress(); got != 0 {
		t.Fatalf("provider audio reached egress in hybrid mode: %d frames", got)
	}
	stream.EmitAudio([]byte{0xFF, 0xFF})
	waitFor(t, func() bool { return f.drainEgress() > 0 }, "tts audio did not reach egress")
}

func TestRun_StateLifecycle(t *testing.T) {
	provider := rtmock.NewSession()
	s, err := New(Config{
		CallID: "C1",
		Agent:  domain.Agent{ID: "jess"},
		Handle: provider,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.State() != domain.CallInitiated {
		t.Fatalf("state = %v, want initiated", s.State())
	}
	s.NotifyRinging()
	if s.State() != domain.CallRinging {
		t.Fatalf("state = %v, want ringing", s.State())
	}
	s.NotifyAnswered()
	if s.State() != domain.CallAnswered {
		t.Fatalf("state = %v, want answered", s.State())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	waitFor(t, func() bool { return s.State() == domain.CallStreaming }, "never reached streaming")

	// Ringing arriving late must not move the state backwards.
	s.NotifyRinging()
	if s.State() != domain.CallStreaming {
		t.Errorf("state = %v after stale webhook, want streaming", s.State())
	}

	provider.Finish()
	if err := <-errCh; err != nil {
		t.Fatalf("run error: %v", err)
	}
	if s.State() != domain.CallCompleted {
		t.Errorf("final state = %v, want completed", s.State())
	}

	s.NotifyAnswered()
	if s.State() != domain.CallCompleted {
		t.Errorf("terminal state moved to %v", s.State())
	}
}

func TestRun_ProviderErrorFailsSession(t *testing.T) {
	provider := rtmock.NewSession()
	s, err := New(Config{CallID: "C1", Agent: domain.Agent{ID: "jess"}, Handle: provider})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	waitFor(t, func() bool { return s.State() == domain.CallStreaming }, "never reached streaming")

	provider.SetErr(errors.New("websocket torn down"))
	provider.Finish()

	if err := <-errCh; err == nil {
		t.Fatal("expected the provider error to surface")
	}
	if s.State() != domain.CallFailed {
		t.Errorf("final state = %v, want failed", s.State())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Handle: rtmock.NewSession()}); err == nil {
		t.Error("expected missing call id to be rejected")
	}
	if _, err := New(Config{CallID: "C1"}); err == nil {
		t.Error("expected missing handle to be rejected")
	}
}
