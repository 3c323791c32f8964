package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func encodeTestWAV(t *testing.T, samples []int16, sampleRate int) []byte {
	t.Helper()

	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		t.Fatalf("failed to write test WAV header: %v", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		t.Fatalf("failed to write test WAV samples: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500}
	sampleRate := 16000

	wavData := encodeTestWAV(t, originalSamples, sampleRate)

	decoded, err := DecodeWAV(wavData, sampleRate)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if len(decoded.Samples) != len(originalSamples) {
		t.Fatalf("expected %d samples, got %d", len(originalSamples), len(decoded.Samples))
	}

	for i, original := range originalSamples {
		want := float32(original) / 32768.0
		if math.Abs(float64(decoded.Samples[i]-want)) > 1e-6 {
			t.Errorf("sample %d: expected %f, got %f", i, want, decoded.Samples[i])
		}
	}

	expectedDuration := float32(len(originalSamples)) / float32(sampleRate)
	if math.Abs(float64(decoded.Duration-expectedDuration)) > 0.001 {
		t.Errorf("expected duration %.3f, got %.3f", expectedDuration, decoded.Duration)
	}
}

func TestDecodeWAVEmpty(t *testing.T) {
	if _, err := DecodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty audio data")
	}
}

func TestDecodeWAVTooShort(t *testing.T) {
	if _, err := DecodeWAV([]byte{1, 2, 3}, 16000); err == nil {
		t.Error("expected error for truncated WAV data")
	}
}

func TestDecodeWAVInvalidHeader(t *testing.T) {
	invalid := make([]byte, 50)
	copy(invalid[0:4], []byte("FAKE"))
	if _, err := DecodeWAV(invalid, 16000); err == nil {
		t.Error("expected error for invalid RIFF header")
	}
}

func TestDecodeWAVRejectsStereo(t *testing.T) {
	samples := []int16{1, 2, 3, 4, 5, 6}
	wavData := encodeTestWAV(t, samples, 16000)
	// Flip NumChannels to 2 in-place (offset 22, little-endian uint16).
	binary.LittleEndian.PutUint16(wavData[22:24], 2)

	if _, err := DecodeWAV(wavData, 16000); err == nil {
		t.Error("expected error for stereo audio")
	}
}

func TestDecodeWAVNoFrames(t *testing.T) {
	wavData := encodeTestWAV(t, nil, 16000)
	if _, err := DecodeWAV(wavData, 16000); err == nil {
		t.Error("expected error for empty audio frames")
	}
}
