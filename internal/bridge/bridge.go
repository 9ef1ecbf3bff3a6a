// Package bridge terminates the carrier's media WebSocket and splices it to
// an AI provider session: μ-law 8 kHz frames from the phone network are
// decoded and resampled up for the provider, and synthesised speech flows
// back down the same socket.
//
// The bridge owns session construction. When a stream opens it recovers the
// call's business context from the anchor row, assembles the prompt, connects
// the provider (with fallback), and runs the session until either side hangs
// up. Teardown persists the transcript, applies the bandit reward, and hands
// the outcome to the campaign layer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/ivr"
	"github.com/parlance-ai/parlance/internal/observe"
	"github.com/parlance-ai/parlance/internal/prompt"
	"github.com/parlance-ai/parlance/internal/registry"
	"github.com/parlance-ai/parlance/internal/session"
	"github.com/parlance-ai/parlance/internal/tools"
	"github.com/parlance-ai/parlance/pkg/audio"
	"github.com/parlance-ai/parlance/pkg/provider/realtime"
	"github.com/parlance-ai/parlance/pkg/telephony"
)

// Sample rates on the two sides of the bridge.
const (
	carrierRate  = 8000
	providerRate = 24000
)

// Defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCloseGrace     = 10 * time.Second
)

// Directory resolves a call id to its business context and persists the
// call's results.
type Directory interface {
	Anchor(ctx context.Context, callID string) (domain.AnchorMessage, error)
	Agent(ctx context.Context, id string) (domain.Agent, error)
	PromptVersion(ctx context.Context, id string) (domain.PromptVersion, error)
	Contact(ctx context.Context, id string) (domain.Contact, error)
	CampaignOffer(ctx context.Context, campaignID string) (*domain.Offer, error)

	FinishCall(ctx context.Context, callID string, transcript []domain.TranscriptEntry, outcome domain.CallOutcome) error
	ApplyOutcome(ctx context.Context, versionID string, outcome domain.CallOutcome) error
}

// CallResolver receives the final outcome of a campaign call, after the
// anchor and bandit writes. The campaign dispatcher implements it.
type CallResolver interface {
	HandleCallOutcome(ctx context.Context, anchor domain.AnchorMessage, outcome domain.CallOutcome) error
}

// Config assembles a [Bridge].
type Config struct {
	Directory Directory
	Registry  *registry.Registry[*session.Session]

	// Realtime connects combined sessions; typically a
	// resilience.RealtimeFallback over the configured providers.
	Realtime realtime.Provider

	// Speech connects the TTS leg for hybrid agents. Required only when a
	// hybrid agent exists.
	Speech realtime.SpeechProvider

	// Calendar, DTMF, and Outcomes back the tool executor.
	Calendar tools.Calendar
	DTMF     tools.DTMFSender
	Outcomes tools.OutcomeStore

	// Resolver is notified after a campaign call resolves. Optional.
	Resolver CallResolver

	// RealismCues adds delivery hints to assembled prompts.
	RealismCues bool

	// IVR supplies detector defaults for every call; an agent's loop
	// threshold overrides the config value.
	IVR ivr.Config

	ConnectTimeout time.Duration
	CloseGrace     time.Duration

	// ToolTimeout, DTMFCooldown, and SpeechFlushIdle tune per-call pacing.
	// Zero values take the package defaults.
	ToolTimeout     time.Duration
	DTMFCooldown    time.Duration
	SpeechFlushIdle time.Duration

	Metrics *observe.Metrics
}

// Bridge accepts media WebSocket streams. One instance serves all calls.
type Bridge struct {
	cfg     Config
	metrics *observe.Metrics
}

// New validates required fields and builds a bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Directory == nil {
		return nil, errors.New("bridge: Directory is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("bridge: Registry is required")
	}
	if cfg.Realtime == nil {
		return nil, errors.New("bridge: Realtime provider is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Bridge{cfg: cfg, metrics: cfg.Metrics}, nil
}

// ServeHTTP handles "GET /voice/stream/{call_id}".
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	built, err := b.buildSession(r.Context(), callID)
	if err != nil {
		slog.Error("session construction failed", "call_id", callID, "error", err)
		http.Error(w, "session unavailable", http.StatusBadGateway)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("media websocket accept failed", "call_id", callID, "error", err)
		built.sess.Close()
		return
	}

	b.serve(r.Context(), conn, built)
}

// builtSession is everything buildSession wires up for one call.
type builtSession struct {
	sess   *session.Session
	handle realtime.SessionHandle
	anchor domain.AnchorMessage
	hybrid bool
}

func (b *Bridge) buildSession(ctx context.Context, callID string) (*builtSession, error) {
	anchor, err := b.cfg.Directory.Anchor(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("bridge: anchor for %s: %w", callID, err)
	}
	agent, err := b.cfg.Directory.Agent(ctx, anchor.AgentID)
	if err != nil {
		return nil, fmt.Errorf("bridge: agent %s: %w", anchor.AgentID, err)
	}

	var version domain.PromptVersion
	if anchor.PromptVersionID != "" {
		if version, err = b.cfg.Directory.PromptVersion(ctx, anchor.PromptVersionID); err != nil {
			return nil, fmt.Errorf("bridge: prompt version %s: %w", anchor.PromptVersionID, err)
		}
	}

	var contact *domain.Contact
	if anchor.ContactID != "" {
		c, err := b.cfg.Directory.Contact(ctx, anchor.ContactID)
		if err != nil {
			slog.Warn("contact lookup failed, continuing without", "call_id", callID, "error", err)
		} else {
			contact = &c
		}
	}

	var offer *domain.Offer
	if anchor.CampaignID != "" {
		if offer, err = b.cfg.Directory.CampaignOffer(ctx, anchor.CampaignID); err != nil {
			slog.Warn("offer lookup failed, continuing without", "call_id", callID, "error", err)
			offer = nil
		}
	}

	now := time.Now()
	if loc, err := time.LoadLocation(agent.Timezone); err == nil && agent.Timezone != "" {
		now = now.In(loc)
	}
	cc := prompt.CallContext{
		Agent:       agent,
		Version:     version,
		Contact:     contact,
		Offer:       offer,
		Direction:   anchor.Direction,
		Now:         now,
		RealismCues: b.cfg.RealismCues,
	}

	handle, speech, err := b.connectProviders(ctx, agent, cc)
	if err != nil {
		return nil, err
	}

	exec := tools.New(tools.Config{
		Agent:    agent,
		CallID:   callID,
		Contact:  contact,
		Calendar: b.cfg.Calendar,
		DTMF:     b.cfg.DTMF,
		Outcomes: b.cfg.Outcomes,
		Timeout:  b.cfg.ToolTimeout,
		Metrics:  b.metrics,
	})

	dcfg := b.cfg.IVR
	if agent.IVRLoopThreshold > 0 {
		dcfg.LoopThreshold = agent.IVRLoopThreshold
	}

	sess, err := session.New(session.Config{
		CallID:          callID,
		Agent:           agent,
		Version:         version,
		Contact:         contact,
		Direction:       anchor.Direction,
		Handle:          handle,
		Speech:          speech,
		Opener:          prompt.Opener(cc),
		Tools:           exec,
		DTMF:            b.cfg.DTMF,
		Detector:        ivr.NewDetector(dcfg),
		DTMFCooldown:    b.cfg.DTMFCooldown,
		SpeechFlushIdle: b.cfg.SpeechFlushIdle,
		Metrics:         b.metrics,
	})
	if err != nil {
		handle.Close()
		if speech != nil {
			speech.Close()
		}
		return nil, err
	}

	if err := b.cfg.Registry.Add(callID, sess); err != nil {
		sess.Close()
		return nil, err
	}

	return &builtSession{
		sess:   sess,
		handle: handle,
		anchor: anchor,
		hybrid: agent.VoiceMode == domain.VoiceHybrid,
	}, nil
}

func (b *Bridge) connectProviders(ctx context.Context, agent domain.Agent, cc prompt.CallContext) (realtime.SessionHandle, realtime.SpeechStream, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	scfg := realtime.SessionConfig{
		Instructions: prompt.Assemble(cc),
		Voice:        agent.VoiceID,
		Temperature:  effectiveTemperature(agent, cc.Version),
		InputFormat:  "pcm16",
		OutputFormat: "pcm16",
		Tools:        tools.Definitions(agent),
	}
	if agent.TurnDetectionMode != "" {
		scfg.TurnDetection = realtime.TurnDetection{
			Type:              agent.TurnDetectionMode,
			Threshold:         agent.TurnDetectionThreshold,
			SilenceDurationMs: agent.SilenceDurationMs,
		}
	}

	start := time.Now()
	handle, err := b.cfg.Realtime.Connect(ctx, scfg)
	b.metrics.ProviderConnectDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: provider connect: %w", err)
	}

	if agent.VoiceMode != domain.VoiceHybrid {
		return handle, nil, nil
	}
	if b.cfg.Speech == nil {
		handle.Close()
		return nil, nil, fmt.Errorf("bridge: agent %s is hybrid but no speech provider is configured", agent.ID)
	}
	speech, err := b.cfg.Speech.ConnectSpeech(ctx, agent.VoiceID)
	if err != nil {
		handle.Close()
		return nil, nil, fmt.Errorf("bridge: speech connect: %w", err)
	}
	return handle, speech, nil
}

// effectiveTemperature prefers the bandit arm's temperature when a version is
// in play.
func effectiveTemperature(agent domain.Agent, version domain.PromptVersion) float64 {
	if version.ID != "" && version.Temperature > 0 {
		return version.Temperature
	}
	return agent.Temperature
}

// serve runs the three pumps until the call ends, then tears down.
func (b *Bridge) serve(ctx context.Context, conn *websocket.Conn, built *builtSession) {
	callID := built.sess.CallID()
	defer b.cfg.Registry.Remove(callID)

	// A stop frame or a read error ends the ingress pump without an error;
	// the explicit cancel (not just errgroup's) is what unwinds the others.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { defer cancel(); return built.sess.Run(ctx) })
	g.Go(func() error { defer cancel(); return b.pumpIngress(ctx, conn, built) })
	g.Go(func() error { return b.pumpEgress(ctx, conn, built) })

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Warn("call ended with error", "call_id", callID, "error", runErr)
	}

	conn.Close(websocket.StatusNormalClosure, "call ended")

	// Teardown writes get their own deadline; the request context is gone.
	finishCtx, cancel := context.WithTimeout(context.Background(), b.cfg.CloseGrace)
	defer cancel()
	b.resolve(finishCtx, built, runErr)
}

// pumpIngress reads carrier frames and feeds caller audio to the provider,
// upsampling μ-law 8 kHz to PCM16 24 kHz.
func (b *Bridge) pumpIngress(ctx context.Context, conn *websocket.Conn, built *builtSession) error {
	up := audio.NewResampler(carrierRate, providerRate)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("bridge: media read: %w", err)
		}

		frame, err := telephony.ParseMediaFrame(data)
		if err != nil {
			slog.Warn("unparseable media frame", "call_id", built.sess.CallID(), "error", err)
			continue
		}

		switch frame.Event {
		case telephony.EventMedia:
			mulaw, err := frame.AudioPayload()
			if err != nil || len(mulaw) == 0 {
				continue
			}
			pcm := up.Process(audio.DecodeMulaw(mulaw))
			if err := built.handle.SendAudio(pcm); err != nil {
				return fmt.Errorf("bridge: send audio: %w", err)
			}
		case telephony.EventStop:
			return nil
		case telephony.EventDTMF:
			if frame.DTMF != nil {
				slog.Debug("carrier reported inbound dtmf", "call_id", built.sess.CallID(), "digit", frame.DTMF.Digit)
			}
		}
	}
}

// pumpEgress relays session audio to the carrier. Combined-mode chunks are
// PCM16 24 kHz and get downsampled; hybrid chunks are already μ-law 8 kHz.
func (b *Bridge) pumpEgress(ctx context.Context, conn *websocket.Conn, built *builtSession) error {
	down := audio.NewResampler(providerRate, carrierRate)

	for chunk := range built.sess.Egress() {
		mulaw := chunk
		if !built.hybrid {
			mulaw = audio.EncodeMulaw(down.Process(chunk))
		}
		if len(mulaw) == 0 {
			continue
		}
		frame, err := telephony.EncodeMediaFrame(mulaw)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("bridge: media write: %w", err)
		}
	}
	return nil
}

// resolve persists the call's results and fans the outcome out.
func (b *Bridge) resolve(ctx context.Context, built *builtSession, runErr error) {
	callID := built.sess.CallID()
	outcome := b.classifyOutcome(ctx, built, runErr)

	if err := b.cfg.Directory.FinishCall(ctx, callID, built.sess.Transcript(), outcome); err != nil {
		slog.Error("call finish write failed", "call_id", callID, "error", err)
	}

	if built.anchor.PromptVersionID != "" {
		if err := b.cfg.Directory.ApplyOutcome(ctx, built.anchor.PromptVersionID, outcome); err != nil {
			slog.Error("bandit outcome write failed", "call_id", callID, "version", built.anchor.PromptVersionID, "error", err)
		}
	}

	if b.cfg.Resolver != nil && built.anchor.CampaignID != "" {
		if err := b.cfg.Resolver.HandleCallOutcome(ctx, built.anchor, outcome); err != nil {
			slog.Error("campaign outcome handling failed", "call_id", callID, "error", err)
		}
	}

	slog.Info("call resolved", "call_id", callID, "outcome", outcome)
}

// classifyOutcome decides what the call amounted to. A recorded booking wins;
// machine detection and transport failures come next; a conversation with no
// booking is a rejection.
func (b *Bridge) classifyOutcome(ctx context.Context, built *builtSession, runErr error) domain.CallOutcome {
	if anchor, err := b.cfg.Directory.Anchor(ctx, built.sess.CallID()); err == nil && anchor.BookingOutcome == "success" {
		return domain.OutcomeBookedAppointment
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return domain.OutcomeFailed
	}
	if built.sess.State() == domain.CallFailed {
		return domain.OutcomeFailed
	}
	if built.sess.IVRStatus().Mode == ivr.ModeVoicemail {
		return domain.OutcomeVoicemail
	}

	// No remote utterances at all means nobody picked up the conversation.
	for _, e := range built.sess.Transcript() {
		if e.Role == "user" {
			return domain.OutcomeRejected
		}
	}
	return domain.OutcomeNoAnswer
}
