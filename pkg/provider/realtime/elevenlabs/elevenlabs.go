// Package elevenlabs implements realtime.SpeechProvider using the ElevenLabs
// streaming WebSocket API. Text fragments are sent incrementally and audio is
// returned as μ-law 8 kHz chunks, so hybrid sessions can forward it to the
// carrier without transcoding.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// Compile-time assertions.
var _ realtime.SpeechProvider = (*Provider)(nil)
var _ realtime.SpeechStream = (*stream)(nil)

const (
	defaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
	defaultModel   = "eleven_flash_v2_5"

	// outputFormat keeps the stream in the carrier's native codec.
	outputFormat = "ulaw_8000"

	audioBuf = 64
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the WebSocket base URL (tests).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements realtime.SpeechProvider backed by ElevenLabs.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── WebSocket message types ────────────────────────────────────────────────────

// textMessage is sent for each buffered text fragment. Flush forces
// synthesis of everything buffered so far.
type textMessage struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

// initMessage is the opening handshake carrying voice settings.
type initMessage struct {
	Text          string         `json:"text"` // must be " " per API contract
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is received for each synthesised chunk.
type audioResponse struct {
	Audio   string `json:"audio"` // base64
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// ── stream ─────────────────────────────────────────────────────────────────────

type stream struct {
	conn    *websocket.Conn
	audioCh chan []byte

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ConnectSpeech opens a streaming synthesis WebSocket for voiceID.
func (p *Provider) ConnectSpeech(ctx context.Context, voiceID string) (realtime.SpeechStream, error) {
	wsURL := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		p.baseURL, voiceID, p.model, outputFormat)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"xi-api-key": []string{p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	st := &stream{
		conn:    conn,
		audioCh: make(chan []byte, audioBuf),
		ctx:     sctx,
		cancel:  cancel,
	}

	// Handshake: a single-space text message opens the stream.
	init := initMessage{
		Text:          " ",
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.8},
	}
	if err := st.writeJSON(init); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("elevenlabs: handshake: %w", err)
	}

	go st.receiveLoop()

	return st, nil
}

func (s *stream) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("elevenlabs: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads synthesised audio and forwards it to audioCh.
// It owns audioCh and closes it on exit.
func (s *stream) receiveLoop() {
	defer s.closeAudio()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Audio == "" {
			continue
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil || len(chunk) == 0 {
			continue
		}
		select {
		case s.audioCh <- chunk:
		case <-s.ctx.Done():
			return
		}
	}
}

// SendText appends one text fragment to the synthesis buffer.
func (s *stream) SendText(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("elevenlabs: stream closed")
	}
	s.mu.Unlock()
	return s.writeJSON(textMessage{Text: text})
}

// Flush forces synthesis of the buffered text.
func (s *stream) Flush() error {
	return s.writeJSON(textMessage{Text: "", Flush: true})
}

// Audio returns the synthesised μ-law audio stream.
func (s *stream) Audio() <-chan []byte { return s.audioCh }

// Err returns the error that terminated the stream, if any.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *stream) closeAudio() {
	s.closeOnce.Do(func() { close(s.audioCh) })
}

// Close terminates the stream. Idempotent.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "stream closed")
	return nil
}
