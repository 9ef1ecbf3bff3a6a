// Package mock provides scripted realtime.Provider and SpeechProvider
// implementations for tests.
package mock

import (
	"context"
	"sync"

	"github.com/parlance-ai/parlance/pkg/provider/realtime"
)

// Compile-time assertions.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*Session)(nil)
var _ realtime.SpeechProvider = (*SpeechProvider)(nil)
var _ realtime.SpeechStream = (*SpeechStream)(nil)

// Provider hands out a pre-built Session on Connect.
type Provider struct {
	// Session is returned by Connect. If nil, a fresh Session is created.
	Session *Session

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	mu        sync.Mutex
	connected []realtime.SessionConfig
}

// Connect records cfg and returns the scripted session.
func (p *Provider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	p.connected = append(p.connected, cfg)
	p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// ConnectCalls returns the configs passed to Connect so far.
func (p *Provider) ConnectCalls() []realtime.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.SessionConfig, len(p.connected))
	copy(out, p.connected)
	return out
}

// Session is a scriptable realtime.SessionHandle. Tests push events with
// Emit and inspect everything the session under test wrote.
type Session struct {
	events chan realtime.Event

	mu           sync.Mutex
	sentAudio    [][]byte
	toolResults  []ToolResult
	injectedText []InjectedText
	cancels      int
	creates      int
	instructions []string
	closed       bool
	errVal       error
}

// ToolResult records one SubmitToolResult call.
type ToolResult struct {
	CallID string
	Output string
}

// InjectedText records one InjectText call.
type InjectedText struct {
	Role string
	Text string
}

// NewSession creates an open scripted session.
func NewSession() *Session {
	return &Session{events: make(chan realtime.Event, 256)}
}

// Emit delivers one event to the session's consumer.
func (s *Session) Emit(evt realtime.Event) { s.events <- evt }

// Finish closes the event channel, simulating provider disconnect.
// Idempotent with Close.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// SetErr sets the terminal error returned by Err.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errVal = err
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.sentAudio = append(s.sentAudio, cp)
	return nil
}

func (s *Session) Events() <-chan realtime.Event { return s.events }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *Session) SubmitToolResult(callID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolResults = append(s.toolResults, ToolResult{CallID: callID, Output: output})
	return nil
}

func (s *Session) CreateResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	return nil
}

func (s *Session) InjectText(role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injectedText = append(s.injectedText, InjectedText{Role: role, Text: text})
	return nil
}

func (s *Session) UpdateInstructions(instructions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = append(s.instructions, instructions)
	return nil
}

func (s *Session) CancelResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// SentAudio returns all chunks passed to SendAudio.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sentAudio))
	copy(out, s.sentAudio)
	return out
}

// ToolResults returns all submitted tool results.
func (s *Session) ToolResults() []ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolResult, len(s.toolResults))
	copy(out, s.toolResults)
	return out
}

// InjectedTexts returns all injected conversation items.
func (s *Session) InjectedTexts() []InjectedText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InjectedText, len(s.injectedText))
	copy(out, s.injectedText)
	return out
}

// CancelCount returns how many times CancelResponse was called.
func (s *Session) CancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// CreateCount returns how many times CreateResponse was called.
func (s *Session) CreateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SpeechProvider hands out a scripted SpeechStream.
type SpeechProvider struct {
	Stream     *SpeechStream
	ConnectErr error
}

// ConnectSpeech returns the scripted stream.
func (p *SpeechProvider) ConnectSpeech(_ context.Context, _ string) (realtime.SpeechStream, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Stream == nil {
		p.Stream = NewSpeechStream()
	}
	return p.Stream, nil
}

// SpeechStream is a scriptable realtime.SpeechStream.
type SpeechStream struct {
	audio chan []byte

	mu      sync.Mutex
	texts   []string
	flushes int
	closed  bool
}

// NewSpeechStream creates an open scripted stream.
func NewSpeechStream() *SpeechStream {
	return &SpeechStream{audio: make(chan []byte, 64)}
}

// EmitAudio delivers one synthesised chunk.
func (s *SpeechStream) EmitAudio(chunk []byte) { s.audio <- chunk }

// Finish closes the audio channel.
func (s *SpeechStream) Finish() { close(s.audio) }

func (s *SpeechStream) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *SpeechStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *SpeechStream) Audio() <-chan []byte { return s.audio }

func (s *SpeechStream) Err() error { return nil }

func (s *SpeechStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Texts returns all fragments passed to SendText.
func (s *SpeechStream) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// FlushCount returns how many times Flush was called.
func (s *SpeechStream) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
