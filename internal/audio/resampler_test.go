package audio

import (
	"math"
	"testing"
)

func TestStreamResamplerPassthroughRatio(t *testing.T) {
	r, err := NewStreamResampler(16000, 16000)
	if err != nil {
		t.Fatalf("NewStreamResampler failed: %v", err)
	}
	if r.ratio != 1.0 {
		t.Errorf("expected ratio 1.0, got %f", r.ratio)
	}
}

func TestStreamResamplerUpsampleRatio(t *testing.T) {
	r, err := NewStreamResampler(8000, 16000)
	if err != nil {
		t.Fatalf("NewStreamResampler failed: %v", err)
	}
	if r.ratio != 2.0 {
		t.Errorf("expected ratio 2.0, got %f", r.ratio)
	}
}

func TestStreamResamplerDownsampleOneSecond(t *testing.T) {
	r, err := NewStreamResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewStreamResampler failed: %v", err)
	}

	input := make([]float32, 48000)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}

	processed, err := r.Process(input)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	out := append([]float32(nil), processed...)

	tail, err := r.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	total := len(out) + len(tail)
	if total < 15980 || total > 16020 {
		t.Errorf("expected 15980-16020 samples for 1s at 48000->16000, got %d", total)
	}
}

func TestFloatByteRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1, 0.0001}
	b := SamplesToBytes(samples)
	back := BytesToSamples(b)

	if len(back) != len(samples) {
		t.Fatalf("expected %d samples back, got %d", len(samples), len(back))
	}
	for i, s := range samples {
		if back[i] != s {
			t.Errorf("sample %d: expected %f, got %f", i, s, back[i])
		}
	}
}
