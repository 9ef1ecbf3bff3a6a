// Package realtime defines the provider abstractions for conversational AI
// backends used by the voice bridge.
//
// Two session kinds exist. A combined session (Provider / SessionHandle)
// carries audio in, and audio, transcripts, and tool calls out, over one
// stateful connection — e.g. the OpenAI Realtime API. A speech stream
// (SpeechProvider / SpeechStream) is the TTS half of a hybrid session: text
// fragments in, synthesised audio out.
//
// Events from a combined session are delivered on a single channel in the
// order the provider sent them, so one consumer loop can mutate session
// state without locks. All implementations must be safe for concurrent use.
package realtime

import "context"

// EventType discriminates the events a combined session emits.
type EventType string

const (
	// EventAudioDelta carries one chunk of synthesised response audio.
	EventAudioDelta EventType = "audio.delta"

	// EventTranscriptDelta carries an incremental fragment of the agent's
	// spoken-response transcript.
	EventTranscriptDelta EventType = "transcript.delta"

	// EventUserTranscript carries a completed transcription of remote-party
	// speech.
	EventUserTranscript EventType = "user.transcript"

	// EventSpeechStarted signals the remote party began speaking (barge-in
	// trigger when the agent is mid-response).
	EventSpeechStarted EventType = "speech.started"

	// EventResponseCreated signals the model started a new response.
	EventResponseCreated EventType = "response.created"

	// EventResponseDone signals the model finished (or abandoned) a
	// response; Status holds the terminal status.
	EventResponseDone EventType = "response.done"

	// EventFunctionCall carries a completed tool invocation request.
	EventFunctionCall EventType = "function.call"

	// EventError carries a non-fatal provider error.
	EventError EventType = "error"
)

// Response terminal statuses reported with EventResponseDone.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Event is one provider event. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// Audio is the decoded audio chunk for EventAudioDelta.
	Audio []byte

	// Text is the transcript fragment (EventTranscriptDelta) or the full
	// utterance (EventUserTranscript).
	Text string

	// CallID, Name, and Arguments describe an EventFunctionCall. Arguments
	// is the raw JSON string emitted by the model.
	CallID    string
	Name      string
	Arguments string

	// Status is the terminal status for EventResponseDone.
	Status string

	// Err is set for EventError.
	Err error
}

// TurnDetection configures the provider's server-side voice activity
// detection.
type TurnDetection struct {
	// Type is the provider's detection mode, e.g. "server_vad".
	Type string

	// Threshold is the activation level in [0,1].
	Threshold float64

	// PrefixPaddingMs is audio retained before detected speech onset.
	PrefixPaddingMs int

	// SilenceDurationMs is trailing silence that ends a user turn.
	SilenceDurationMs int
}

// ToolDefinition describes one function offered to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is the JSON Schema for the tool's arguments.
	Parameters map[string]any
}

// SessionConfig is the initial configuration for a combined session.
type SessionConfig struct {
	// Instructions is the fully assembled system prompt.
	Instructions string

	// Voice is the provider-specific voice identifier.
	Voice string

	// Temperature controls sampling randomness.
	Temperature float64

	// InputFormat and OutputFormat declare the audio codecs, e.g. "pcm16"
	// (24 kHz) or "g711_ulaw" (8 kHz).
	InputFormat  string
	OutputFormat string

	// TurnDetection configures server-side VAD. A zero value uses provider
	// defaults.
	TurnDetection TurnDetection

	// Tools is the set of functions the model may call.
	Tools []ToolDefinition
}

// SessionHandle is an open combined session. Callers must drain Events
// promptly and call Close when done. Close is idempotent.
type SessionHandle interface {
	// SendAudio appends one chunk of caller audio to the provider's input
	// buffer. The chunk must match SessionConfig.InputFormat.
	SendAudio(chunk []byte) error

	// Events returns the session's ordered event stream. The channel is
	// closed when the session ends; check Err afterwards.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it
	// closed cleanly.
	Err() error

	// SubmitToolResult injects a function_call_output for callID.
	SubmitToolResult(callID, output string) error

	// CreateResponse asks the model to generate its next response, e.g.
	// after a tool result or an injected prompt.
	CreateResponse() error

	// InjectText inserts a text message with the given role ("system",
	// "user", "assistant") into the conversation.
	InjectText(role, text string) error

	// UpdateInstructions replaces the system instructions mid-session.
	UpdateInstructions(instructions string) error

	// CancelResponse asks the model to abandon the in-flight response
	// (barge-in).
	CancelResponse() error

	// Close terminates the session and closes the Events channel.
	Close() error
}

// Provider opens combined sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}

// SpeechStream is the TTS leg of a hybrid session: buffered text fragments
// in, synthesised audio chunks out.
type SpeechStream interface {
	// SendText appends a text fragment to the synthesis buffer.
	SendText(text string) error

	// Flush forces synthesis of everything buffered so far.
	Flush() error

	// Audio returns the synthesised audio stream. Closed when the stream
	// ends; check Err afterwards.
	Audio() <-chan []byte

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close terminates the stream. Idempotent.
	Close() error
}

// SpeechProvider opens speech streams for a given voice.
type SpeechProvider interface {
	ConnectSpeech(ctx context.Context, voiceID string) (SpeechStream, error)
}
