package audio

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/skypro1111/gigaam-stream-server/internal/asrerr"
)

// maxFrames guards against absurdly long uploads: one hour at 48kHz.
const maxFrames = 48000 * 3600

// wavHeader mirrors the canonical 44-byte PCM WAV header.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// Data holds decoded mono PCM samples normalized to [-1, 1] and the
// duration of the clip in seconds.
type Data struct {
	Samples  []float32
	Duration float32
}

// DecodeWAV decodes a mono PCM or IEEE-float WAV file into float32 samples,
// resampling to targetRate when the file's own rate differs.
func DecodeWAV(data []byte, targetRate int) (Data, error) {
	if len(data) == 0 {
		return Data{}, asrerr.NewAudioError("empty audio data")
	}
	if len(data) < 44 {
		return Data{}, asrerr.NewAudioError("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	buf := bytes.NewReader(data)
	var header wavHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return Data{}, asrerr.NewAudioError("failed to read WAV header: %v", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return Data{}, asrerr.NewAudioError("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return Data{}, asrerr.NewAudioError("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return Data{}, asrerr.NewAudioError("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return Data{}, asrerr.NewAudioError("invalid WAV file: missing data chunk")
	}
	if header.NumChannels != 1 {
		return Data{}, asrerr.NewAudioError("only mono audio is supported, got %d channels", header.NumChannels)
	}

	var samples []float32
	switch {
	case header.AudioFormat == 1 && header.BitsPerSample == 16:
		samples = decodePCM16(data[44:])
	case header.AudioFormat == 1 && header.BitsPerSample == 32:
		samples = decodePCM32(data[44:])
	case header.AudioFormat == 3 && header.BitsPerSample == 32:
		samples = decodeFloat32(data[44:])
	default:
		return Data{}, asrerr.NewAudioError("unsupported audio format %d / %d bits", header.AudioFormat, header.BitsPerSample)
	}

	if len(samples) == 0 {
		return Data{}, asrerr.NewAudioError("WAV file contains no audio frames")
	}
	if len(samples) > maxFrames {
		return Data{}, asrerr.NewAudioError("WAV file too long: %d frames exceeds 1-hour limit", len(samples))
	}

	inputRate := int(header.SampleRate)
	if inputRate != targetRate && inputRate > 0 {
		resampler, err := NewStreamResampler(inputRate, targetRate)
		if err != nil {
			return Data{}, err
		}
		processed, err := resampler.Process(samples)
		if err != nil {
			return Data{}, err
		}
		// Process's result aliases the resampler's internal output buffer
		// and is only valid until the next call, so copy it out before
		// Flush overwrites it with the filter tail.
		samples = append([]float32(nil), processed...)

		tail, err := resampler.Flush()
		if err != nil {
			return Data{}, err
		}
		samples = append(samples, tail...)
	}

	duration := float32(len(samples)) / float32(targetRate)
	return Data{Samples: samples, Duration: duration}, nil
}

func decodePCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

func decodePCM32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int32(binary.LittleEndian.Uint32(data[i*4:]))
		out[i] = float32(v) / 2147483648.0
	}
	return out
}

func decodeFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
