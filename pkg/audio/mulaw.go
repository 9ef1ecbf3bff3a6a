// Package audio provides the pure-function audio plumbing for the telephony
// bridge: G.711 μ-law codec, linear-interpolation resampling between the
// carrier's 8 kHz domain and the AI provider's 24 kHz domain, and fixed-size
// frame chunking.
//
// All operations work on little-endian int16 PCM byte slices and allocate at
// most proportionally to their input.
package audio

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// mulawDecodeTable maps every μ-law byte to its 16-bit linear sample.
// Built once at init from the G.711 expansion rule.
var mulawDecodeTable [256]int16

func init() {
	for i := range 256 {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := ((int32(mantissa) << 3) + mulawBias) << exponent
		sample -= mulawBias
		if u&0x80 != 0 {
			sample = -sample
		}
		mulawDecodeTable[i] = int16(sample)
	}
}

// DecodeMulaw expands G.711 μ-law bytes into 16-bit little-endian PCM.
// Every input byte produces exactly two output bytes; no byte value fails.
func DecodeMulaw(data []byte) []byte {
	out := make([]byte, len(data)*2)
	for i, b := range data {
		s := mulawDecodeTable[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// EncodeMulaw compresses 16-bit little-endian PCM into G.711 μ-law.
// An odd trailing byte is dropped. Samples are clamped to the μ-law clip
// level before segmentation.
func EncodeMulaw(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples)
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = encodeSample(s)
	}
	return out
}

// encodeSample compresses one linear sample using the standard segmented
// μ-law companding rule.
func encodeSample(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := int32(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; exponent-- {
		mask >>= 1
	}

	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | byte(exponent)<<4 | mantissa)
}
