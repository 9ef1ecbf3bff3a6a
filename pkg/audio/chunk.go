package audio

// Telephony frame constants. The carrier ships ~20 ms of μ-law per WebSocket
// frame: 160 bytes at 8 kHz mono.
const (
	CarrierRate  = 8000
	ProviderRate = 24000

	// FrameDuration is the nominal carrier media frame length.
	FrameDurationMs = 20

	// MulawFrameBytes is the μ-law payload size of one 20 ms carrier frame.
	MulawFrameBytes = CarrierRate * FrameDurationMs / 1000
)

// Chunk splits data into frames of at most size bytes, preserving order.
// The final frame may be short. Returned slices alias data.
func Chunk(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		frames = append(frames, data[:size])
		data = data[size:]
	}
	frames = append(frames, data)
	return frames
}
