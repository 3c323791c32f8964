package audio

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/zaf/resample"

	"github.com/skypro1111/gigaam-stream-server/internal/asrerr"
)

// StreamResampler incrementally resamples a float32 PCM stream from one
// sample rate to another. Unlike a one-shot resample, it keeps the
// resampler's internal filter state across calls so audio fed in separate
// chunks resamples as if it were one continuous stream.
//
// Flush drains the filter tail and then returns the resampler to a clean
// state, so the same instance can be reused for a new stream without
// reallocating the underlying converter.
type StreamResampler struct {
	inputRate  int
	outputRate int
	ratio      float64

	sink *bytes.Buffer
	conv *resample.Resampler

	outBuf []float32
}

// NewStreamResampler builds a resampler converting from inputRate to
// outputRate, both in Hz.
func NewStreamResampler(inputRate, outputRate int) (*StreamResampler, error) {
	sr := &StreamResampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(outputRate) / float64(inputRate),
		sink:       &bytes.Buffer{},
	}

	conv, err := resample.New(sr.sink, float64(inputRate), float64(outputRate), 1, resample.F32, resample.MediumQ)
	if err != nil {
		return nil, asrerr.NewAudioError("failed to create resampler: %v", err)
	}
	sr.conv = conv

	return sr, nil
}

// Process resamples input and returns the resampled output. The returned
// slice is only valid until the next call to Process or Flush.
func (r *StreamResampler) Process(input []float32) ([]float32, error) {
	r.sink.Reset()

	if _, err := r.conv.Write(SamplesToBytes(input)); err != nil {
		return nil, asrerr.NewAudioError("resampling failed: %v", err)
	}

	return r.readSink(), nil
}

// Flush signals end-of-input to the resampler with a zero-length write,
// draining whatever samples remain in its filter delay into the sink, then
// resets the converter's internal state so the StreamResampler is ready
// for the next stream. It must be called to recover the final samples
// buffered inside the resampler's filter delay.
func (r *StreamResampler) Flush() ([]float32, error) {
	r.sink.Reset()

	if _, err := r.conv.Write(nil); err != nil {
		return nil, asrerr.NewAudioError("resampler flush failed: %v", err)
	}

	tail := r.readSink()

	r.sink.Reset()
	if err := r.conv.Reset(r.sink); err != nil {
		return nil, asrerr.NewAudioError("resampler reset failed: %v", err)
	}

	return tail, nil
}

// readSink decodes the bytes currently buffered in the sink into outBuf,
// reusing its backing array across calls instead of allocating a fresh
// slice per chunk.
func (r *StreamResampler) readSink() []float32 {
	data := r.sink.Bytes()
	n := len(data) / 4

	if cap(r.outBuf) < n {
		r.outBuf = make([]float32, n)
	}
	r.outBuf = r.outBuf[:n]

	for i := 0; i < n; i++ {
		r.outBuf[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	return r.outBuf
}

// SamplesToBytes encodes mono float32 PCM as little-endian IEEE-754 bytes,
// the wire format of the streaming channel's binary frames.
func SamplesToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// BytesToSamples decodes little-endian IEEE-754 float32 bytes into mono
// PCM samples. Trailing bytes that don't form a complete sample are
// ignored by the caller's own length validation.
func BytesToSamples(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
