package audio_test

import (
	"math"
	"testing"

	"github.com/parlance-ai/parlance/pkg/audio"
)

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 8000, 8000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample8To24(t *testing.T) {
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 8000, 24000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample24To8(t *testing.T) {
	pcm := samplesToBytes([]int16{300, 600, 900, 1200, 1500, 1800})
	out := audio.ResampleMono16(pcm, 24000, 8000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0] != 300 {
		t.Errorf("first sample: got %d, want 300", got[0])
	}
}

func TestResampler_FrameBoundaryContinuity(t *testing.T) {
	// A ramp split across two frames must resample without a discontinuity
	// at the seam: every output step should stay close to the ramp slope.
	ramp := make([]int16, 160)
	for i := range ramp {
		ramp[i] = int16(i * 100)
	}
	all := samplesToBytes(ramp)

	r := audio.NewResampler(8000, 24000)
	var streamed []int16
	streamed = append(streamed, bytesToSamples(r.Process(all[:160]))...)
	streamed = append(streamed, bytesToSamples(r.Process(all[160:]))...)

	for i := 1; i < len(streamed); i++ {
		step := math.Abs(float64(streamed[i]) - float64(streamed[i-1]))
		// Ramp slope is 100 per source sample ≈ 33 per 24 kHz sample.
		if step > 110 {
			t.Fatalf("discontinuity at output sample %d: step %.0f", i, step)
		}
	}
}

// One second of 24 kHz audio in 10 ms frames must come out as exactly one
// second of 8 kHz audio; a per-frame shortfall would make carrier playback
// drift behind the provider.
func TestResampler_DownsampleKeepsStreamLength(t *testing.T) {
	r := audio.NewResampler(24000, 8000)
	frame := samplesToBytes(make([]int16, 240))

	total := 0
	for range 100 {
		total += len(r.Process(frame)) / 2
	}
	if total != 8000 {
		t.Fatalf("got %d output samples, want 8000", total)
	}
}

func TestResampler_DownsampleFrameBoundaryContinuity(t *testing.T) {
	// A ramp split across two frames: 24 kHz→8 kHz keeps every third source
	// sample, so the output must step by exactly 3× the ramp slope with no
	// jump or stall at the seam.
	ramp := make([]int16, 480)
	for i := range ramp {
		ramp[i] = int16(i * 50)
	}
	all := samplesToBytes(ramp)

	r := audio.NewResampler(24000, 8000)
	var streamed []int16
	streamed = append(streamed, bytesToSamples(r.Process(all[:480]))...)
	streamed = append(streamed, bytesToSamples(r.Process(all[480:]))...)

	if len(streamed) != 160 {
		t.Fatalf("got %d output samples, want 160", len(streamed))
	}
	for i := 1; i < len(streamed); i++ {
		if step := streamed[i] - streamed[i-1]; step != 150 {
			t.Fatalf("step at output sample %d = %d, want 150", i, step)
		}
	}
}

func TestResampler_Reset(t *testing.T) {
	r := audio.NewResampler(8000, 24000)
	frame := samplesToBytes([]int16{1000, 1000, 1000, 1000})
	first := r.Process(frame)
	r.Reset()
	second := r.Process(frame)
	if len(first) != len(second) {
		t.Errorf("reset changed output length: %d vs %d", len(first), len(second))
	}
}
