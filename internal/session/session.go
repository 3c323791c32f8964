package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/skypro1111/gigaam-stream-server/internal/audio"
	"github.com/skypro1111/gigaam-stream-server/internal/metrics"
	"github.com/skypro1111/gigaam-stream-server/internal/recognizer"
	"github.com/skypro1111/gigaam-stream-server/internal/vad"
)

// MessageType distinguishes the three kinds of message a Session emits.
type MessageType string

const (
	Interim MessageType = "interim"
	Final   MessageType = "final"
	Done    MessageType = "done"
)

// OutMessage pairs a message kind with its already-serialized JSON body.
type OutMessage struct {
	Type MessageType
	JSON string
}

// Config carries the audio parameters a Session needs once, so it doesn't
// reach back into the global config package on every call.
type Config struct {
	SampleRate  int
	WindowSize  int
	MinAudioSec float64
	MaxAudioSec float64
}

// Session is a per-connection state machine: it windows incoming audio,
// drives a VAD instance, pulls finished segments through the recognizer
// pool, and produces interim/final/done messages. A Session is bound to
// one connection's serialized event stream and is not safe for concurrent
// use.
type Session struct {
	pool    *recognizer.Pool
	vad     *vad.Detector
	metrics *metrics.Metrics
	cfg     Config

	pending []float32
	out     []OutMessage

	startTS              time.Time
	hasFirstResult       bool
	segments             int
	silenceSegments      int
	decodeSec            float64
	preprocessSec        float64
	audioSamples         int64
	totalSamplesReceived int64
	sessionActive        bool
	maxDurationExceeded  bool
	chunks               int
	bytes                int64
}

// New constructs a Session around a shared recognizer pool and a
// dedicated VAD detector (the VAD carries per-connection state and must
// not be shared across Sessions).
func New(pool *recognizer.Pool, detector *vad.Detector, m *metrics.Metrics, cfg Config) *Session {
	s := &Session{
		pool:    pool,
		vad:     detector,
		metrics: m,
		cfg:     cfg,
		pending: make([]float32, 0, cfg.WindowSize),
	}
	s.resetCounters()
	return s
}

func (s *Session) resetCounters() {
	s.startTS = time.Now()
	s.hasFirstResult = false
	s.segments = 0
	s.silenceSegments = 0
	s.decodeSec = 0
	s.preprocessSec = 0
	s.audioSamples = 0
	s.chunks = 0
	s.bytes = 0
	s.totalSamplesReceived = 0
	s.maxDurationExceeded = false
}

// OnAudio feeds a chunk of mono float32 PCM through the windowing and VAD
// pipeline. The returned slice is only valid until the next call on this
// Session.
func (s *Session) OnAudio(samples []float32) []OutMessage {
	s.out = s.out[:0]

	if s.maxDurationExceeded {
		return s.out
	}

	preprocessStart := time.Now()

	if !s.sessionActive {
		s.sessionActive = true
		s.metrics.SessionStarted()
	}

	s.chunks++
	s.totalSamplesReceived += int64(len(samples))
	s.bytes += int64(len(samples)) * 4

	rms := audio.ComputeRMS(samples)
	s.metrics.RecordAudioLevel(float64(rms))

	offset := 0
	for offset < len(samples) {
		remaining := s.cfg.WindowSize - len(s.pending)
		toCopy := len(samples) - offset
		if toCopy > remaining {
			toCopy = remaining
		}

		s.pending = append(s.pending, samples[offset:offset+toCopy]...)
		offset += toCopy

		if len(s.pending) == s.cfg.WindowSize {
			s.vad.AcceptWaveform(s.pending) //nolint:errcheck // inference failures surface as empty segments
			s.pending = s.pending[:0]
		}
	}

	s.preprocessSec += time.Since(preprocessStart).Seconds()

	s.processVADSegments()

	if len(s.out) == 0 {
		duration := float64(s.totalSamplesReceived) / float64(s.cfg.SampleRate)
		s.writeInterim(duration, rms, s.vad.IsSpeech())
	}

	receivedSec := float64(s.totalSamplesReceived) / float64(s.cfg.SampleRate)
	if receivedSec > s.cfg.MaxAudioSec {
		s.flushPending()
		s.processVADSegments()
		s.finalizeSession()
		s.maxDurationExceeded = true
	}

	return s.out
}

// OnRecognize handles an explicit finalize request: it flushes pending
// samples through the VAD, drains any resulting segments, and closes out
// the session with a done message.
func (s *Session) OnRecognize() []OutMessage {
	s.out = s.out[:0]

	if s.maxDurationExceeded {
		s.maxDurationExceeded = false
		return s.out
	}

	s.flushPending()
	s.processVADSegments()
	s.finalizeSession()
	return s.out
}

// OnReset clears all session and VAD state without emitting a done
// message, so the connection can start a fresh utterance.
func (s *Session) OnReset() {
	s.maxDurationExceeded = false
	if s.sessionActive {
		s.metrics.SessionEnded(0)
		s.sessionActive = false
	}
	s.vad.Reset()
	s.pending = s.pending[:0]
	s.resetCounters()
}

// OnClose records final session metrics when the underlying connection
// closes without an explicit RECOGNIZE.
func (s *Session) OnClose() {
	if s.sessionActive {
		elapsed := time.Since(s.startTS).Seconds()
		s.metrics.SessionEnded(elapsed)
		s.sessionActive = false
	}
}

func (s *Session) processVADSegments() {
	for !s.vad.Empty() {
		segment := s.vad.Front()
		audioSec := float64(len(segment.Samples)) / float64(s.cfg.SampleRate)

		if audioSec < s.cfg.MinAudioSec {
			s.silenceSegments++
			s.metrics.RecordSilence()
			s.vad.Pop()
			continue
		}

		t0 := time.Now()
		text, err := s.pool.Recognize(segment.Samples, s.cfg.SampleRate)
		segDecodeSec := time.Since(t0).Seconds()

		s.decodeSec += segDecodeSec
		s.audioSamples += int64(len(segment.Samples))

		s.metrics.ObserveSegment(audioSec, segDecodeSec)

		if err != nil || text == "" {
			s.silenceSegments++
			s.metrics.RecordSilence()
		} else {
			if !s.hasFirstResult {
				s.hasFirstResult = true
				s.metrics.ObserveTTFR(time.Since(s.startTS).Seconds(), "websocket")
			}
			s.segments++
			s.metrics.RecordResult(text)
			s.writeFinal(text, audioSec)
		}

		s.vad.Pop()
	}
}

func (s *Session) flushPending() {
	if len(s.pending) > 0 {
		for len(s.pending) < s.cfg.WindowSize {
			s.pending = append(s.pending, 0)
		}
		s.vad.AcceptWaveform(s.pending) //nolint:errcheck
		s.pending = s.pending[:0]
	}
	s.vad.Flush()
}

func (s *Session) finalizeSession() {
	totalSec := time.Since(s.startTS).Seconds()
	audioSec := float64(s.audioSamples) / float64(s.cfg.SampleRate)

	s.metrics.ObserveRequest(totalSec, audioSec, s.decodeSec, s.chunks, s.bytes, s.preprocessSec, 0, "websocket", true)

	if total := s.segments + s.silenceSegments; total > 0 {
		s.metrics.SetSpeechRatio(float64(s.segments) / float64(total))
	}

	s.writeDone()

	if s.sessionActive {
		s.metrics.SessionEnded(totalSec)
		s.sessionActive = false
	}

	s.vad.Reset()
	s.pending = s.pending[:0]
	s.resetCounters()
}

func (s *Session) writeInterim(duration float64, rms float32, isSpeech bool) {
	s.out = append(s.out, OutMessage{
		Type: Interim,
		JSON: fmt.Sprintf(`{"type":"interim","duration":%.1f,"rms":%.4f,"is_speech":%t}`, duration, rms, isSpeech),
	})
}

func (s *Session) writeFinal(text string, duration float64) {
	var b strings.Builder
	b.WriteString(`{"type":"final","text":"`)
	jsonEscapeTo(&b, text)
	fmt.Fprintf(&b, `","duration":%.3f}`, duration)
	s.out = append(s.out, OutMessage{Type: Final, JSON: b.String()})
}

func (s *Session) writeDone() {
	s.out = append(s.out, OutMessage{Type: Done, JSON: `{"type":"done"}`})
}

// jsonEscapeTo appends s to b with the mandatory JSON escapes from
// RFC 8259 §7, including \u00XX for control characters below 0x20.
func jsonEscapeTo(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
}
