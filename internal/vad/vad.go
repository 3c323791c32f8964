package vad

import (
	"fmt"
	"strings"
	"time"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/skypro1111/gigaam-stream-server/internal/asrerr"
)

// Config controls both the neural classifier and the outer segmentation
// state machine that turns per-window speech/silence calls into finished
// segments.
type Config struct {
	ModelPath   string
	Threshold   float32
	MinSilence  time.Duration
	MinSpeech   time.Duration
	MaxSpeech   time.Duration
	SampleRate  int
	WindowSize  int
	ContextSize int
}

// Segment is a contiguous run of samples classified as one utterance,
// including the trailing silence that closed it.
type Segment struct {
	Samples []float32
}

// Detector drives a neural voice-activity classifier window by window and
// assembles the classified windows into finished speech segments. Detector
// is not safe for concurrent use; it is owned by exactly one Session.
type Detector struct {
	cfg Config
	det *speech.Detector

	inSpeech         bool
	silenceSamples   int64
	speechRunSamples int64
	speechBuf        []float32

	minSilenceSamples int64
	maxSpeechSamples  int64

	segments []Segment
}

// New constructs a Detector backed by the Silero ONNX model at cfg.ModelPath.
func New(cfg Config) (*Detector, error) {
	if cfg.WindowSize <= 0 {
		return nil, asrerr.NewConfigError("vad window_size must be positive")
	}
	if cfg.ContextSize < 0 || cfg.ContextSize >= cfg.WindowSize {
		return nil, asrerr.NewConfigError("vad context_size must be in [0, window_size)")
	}
	if cfg.SampleRate <= 0 {
		return nil, asrerr.NewConfigError("vad sample_rate must be positive")
	}
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, asrerr.NewConfigError("vad threshold must be in (0, 1)")
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           cfg.SampleRate,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: 0,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, asrerr.NewInferenceError("failed to load vad model", err)
	}

	d := &Detector{
		cfg:               cfg,
		det:               det,
		minSilenceSamples: int64(cfg.MinSilence.Seconds() * float64(cfg.SampleRate)),
		maxSpeechSamples:  int64(cfg.MaxSpeech.Seconds() * float64(cfg.SampleRate)),
	}
	d.speechBuf = make([]float32, 0, d.maxSpeechSamples)

	return d, nil
}

// AcceptWaveform feeds exactly WindowSize samples through the classifier
// and advances the segmentation state machine.
func (d *Detector) AcceptWaveform(window []float32) error {
	if len(window) != d.cfg.WindowSize {
		return fmt.Errorf("accept_waveform: got %d samples, expected window size %d", len(window), d.cfg.WindowSize)
	}

	speaking, err := d.classify(window)
	if err != nil {
		return err
	}

	windowSamples := int64(len(window))

	if speaking {
		if !d.inSpeech {
			d.inSpeech = true
			d.speechRunSamples = 0
			d.speechBuf = d.speechBuf[:0]
		}
		d.silenceSamples = 0
		d.speechBuf = append(d.speechBuf, window...)
		d.speechRunSamples += windowSamples

		if d.speechRunSamples >= d.maxSpeechSamples {
			d.finalizeSegment()
		}
		return nil
	}

	if d.inSpeech {
		d.silenceSamples += windowSamples
		d.speechBuf = append(d.speechBuf, window...)
		d.speechRunSamples += windowSamples

		if d.silenceSamples >= d.minSilenceSamples {
			d.finalizeSegment()
		}
	}

	return nil
}

// classify reports whether window contains speech, delegating the neural
// inference itself to the Silero model while keeping segment-boundary
// bookkeeping in the Detector.
func (d *Detector) classify(window []float32) (bool, error) {
	event, err := d.det.DetectStreamFrame(window)
	if err != nil {
		if strings.Contains(err.Error(), "unexpected speech end") {
			d.det.Reset()
			return d.inSpeech, nil
		}
		return false, asrerr.NewInferenceError("vad inference failed", err)
	}

	speaking := d.inSpeech
	if event != nil {
		if event.IsStart {
			speaking = true
		}
		if event.IsEnd {
			speaking = false
		}
	}
	return speaking, nil
}

func (d *Detector) finalizeSegment() {
	defer func() {
		d.inSpeech = false
		d.silenceSamples = 0
		d.speechRunSamples = 0
	}()

	if len(d.speechBuf) == 0 {
		return
	}

	duration := time.Duration(float64(len(d.speechBuf)) / float64(d.cfg.SampleRate) * float64(time.Second))
	if duration < d.cfg.MinSpeech {
		d.speechBuf = d.speechBuf[:0]
		return
	}

	segment := Segment{Samples: append([]float32(nil), d.speechBuf...)}
	d.segments = append(d.segments, segment)
	d.speechBuf = d.speechBuf[:0]
}

// Empty reports whether the ready segment queue has no pending segments.
func (d *Detector) Empty() bool { return len(d.segments) == 0 }

// Front returns the oldest ready segment without removing it.
func (d *Detector) Front() Segment { return d.segments[0] }

// Pop removes the oldest ready segment.
func (d *Detector) Pop() {
	d.segments = d.segments[1:]
}

// IsSpeech reports whether the detector currently believes it is inside a
// speech run.
func (d *Detector) IsSpeech() bool { return d.inSpeech }

// Flush finalizes any in-progress speech run unconditionally, ignoring the
// minimum-silence criterion but still honoring minimum speech duration.
func (d *Detector) Flush() {
	if d.inSpeech && len(d.speechBuf) > 0 {
		d.finalizeSegment()
	}
}

// Reset clears all segmentation and classifier state so the Detector can
// be reused for a new connection.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.silenceSamples = 0
	d.speechRunSamples = 0
	d.speechBuf = d.speechBuf[:0]
	d.segments = nil
	d.det.Reset()
}

// Close releases the underlying ONNX runtime session.
func (d *Detector) Close() error {
	return d.det.Destroy()
}
