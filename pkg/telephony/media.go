package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media WebSocket frame events. Every frame is a JSON text message with an
// "event" discriminator; audio payloads are base64 μ-law 8 kHz mono,
// ~20 ms per frame.
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventDTMF  = "dtmf"
)

// MediaFrame is one JSON frame on the carrier media WebSocket, in either
// direction. Only the fields matching Event are populated.
type MediaFrame struct {
	Event string `json:"event"`

	// Start is set on the first frame of a stream.
	Start *StartPayload `json:"start,omitempty"`

	// Media carries one audio chunk.
	Media *MediaPayload `json:"media,omitempty"`

	// DTMF reports a tone detected by the carrier on the inbound leg.
	DTMF *DTMFPayload `json:"dtmf,omitempty"`

	// StreamID correlates frames within one stream.
	StreamID string `json:"stream_id,omitempty"`

	// SequenceNumber orders media frames. String-typed on the wire.
	SequenceNumber string `json:"sequence_number,omitempty"`
}

// StartPayload announces stream metadata on the opening frame.
type StartPayload struct {
	CallControlID string      `json:"call_control_id"`
	MediaFormat   MediaFormat `json:"media_format"`
}

// MediaFormat declares the audio encoding of the stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64 μ-law chunk.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// DTMFPayload reports a single detected digit.
type DTMFPayload struct {
	Digit string `json:"digit"`
}

// ParseMediaFrame decodes one media WebSocket text frame.
func ParseMediaFrame(data []byte) (*MediaFrame, error) {
	var f MediaFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("telephony: parse media frame: %w", err)
	}
	return &f, nil
}

// AudioPayload base64-decodes the frame's μ-law audio. Returns nil for
// non-media frames or empty payloads.
func (f *MediaFrame) AudioPayload() ([]byte, error) {
	if f.Event != EventMedia || f.Media == nil || f.Media.Payload == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("telephony: decode media payload: %w", err)
	}
	return raw, nil
}

// EncodeMediaFrame builds the JSON wire form of one outbound audio chunk.
func EncodeMediaFrame(mulaw []byte) ([]byte, error) {
	f := MediaFrame{
		Event: EventMedia,
		Media: &MediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("telephony: encode media frame: %w", err)
	}
	return data, nil
}
