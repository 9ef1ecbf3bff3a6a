package audio

import "math"

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples.
// If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// Resampler is a streaming mono resampler. It tracks the fractional source
// position across frames, so back-to-back frames resample to the same
// waveform as one concatenated buffer would and the output rate holds exact
// over any frame size. Create one per direction per stream; not safe for
// concurrent use.
type Resampler struct {
	SrcRate int
	DstRate int

	// pos is the source position of the next output sample, relative to the
	// first sample of the next frame. Values in (-1, 0) interpolate across
	// the seam using last.
	pos  float64
	last int16
}

// NewResampler creates a streaming resampler between the two rates.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{SrcRate: srcRate, DstRate: dstRate}
}

// Process resamples one frame. Output positions that land between the
// previous frame's final sample and this frame's first are interpolated
// across the seam; positions past this frame's final sample are deferred to
// the next frame, never dropped.
func (r *Resampler) Process(pcm []byte) []byte {
	if r.SrcRate == r.DstRate || len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2
	ratio := float64(r.SrcRate) / float64(r.DstRate)

	sample := func(i int) int16 {
		return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}

	out := make([]byte, 0, (n*r.DstRate/r.SrcRate+1)*2)
	pos := r.pos
	for pos <= float64(n-1) {
		idx := int(math.Floor(pos))
		frac := pos - float64(idx)

		var s0 int16
		if idx < 0 {
			s0 = r.last
		} else {
			s0 = sample(idx)
		}
		s1 := s0
		if idx+1 < n {
			s1 = sample(idx + 1)
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out = append(out, byte(v), byte(uint16(v)>>8))
		pos += ratio
	}

	r.pos = pos - float64(n)
	r.last = sample(n - 1)
	return out
}

// Reset clears the carried position and boundary sample, e.g. after a
// barge-in drops the egress queue and the next frame starts a fresh
// waveform.
func (r *Resampler) Reset() {
	r.pos = 0
	r.last = 0
}
