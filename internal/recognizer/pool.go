package recognizer

import (
	"fmt"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/skypro1111/gigaam-stream-server/internal/asrerr"
)

// Config describes the on-disk transducer model and how many parallel
// decoding slots to build around it.
type Config struct {
	ModelDir   string
	Provider   string
	NumThreads int
	SampleRate int
	FeatureDim int
	PoolSize   int
}

type slot struct {
	handle *sherpa.OfflineRecognizer
	inUse  bool
}

// Pool is a bounded set of sherpa-onnx offline recognizer instances shared
// across connections. Acquiring a slot blocks until one is free; decoding
// itself runs without holding the pool lock so slots can decode in
// parallel.
type Pool struct {
	cfg   Config
	slots []*slot

	mu   sync.Mutex
	cond *sync.Cond
}

// NewPool loads PoolSize recognizer instances from ModelDir, splitting
// NumThreads evenly across them.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.ModelDir == "" {
		return nil, asrerr.NewConfigError("model_dir cannot be empty")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	threadsPerSlot := cfg.NumThreads / poolSize
	if threadsPerSlot < 1 {
		threadsPerSlot = 1
	}

	p := &Pool{cfg: cfg, slots: make([]*slot, poolSize)}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < poolSize; i++ {
		recognizerConfig := sherpa.OfflineRecognizerConfig{
			FeatConfig: sherpa.FeatureConfig{
				SampleRate: cfg.SampleRate,
				FeatureDim: cfg.FeatureDim,
			},
			ModelConfig: sherpa.OfflineModelConfig{
				Transducer: sherpa.OfflineTransducerModelConfig{
					Encoder: cfg.ModelDir + "/encoder.int8.onnx",
					Decoder: cfg.ModelDir + "/decoder.onnx",
					Joiner:  cfg.ModelDir + "/joiner.onnx",
				},
				Tokens:     cfg.ModelDir + "/tokens.txt",
				NumThreads: threadsPerSlot,
				Provider:   cfg.Provider,
				ModelType:  "nemo_transducer",
				Debug:      0,
			},
			DecodingMethod: "greedy_search",
		}

		handle := sherpa.NewOfflineRecognizer(&recognizerConfig)
		if handle == nil {
			for j := 0; j < i; j++ {
				sherpa.DeleteOfflineRecognizer(p.slots[j].handle)
			}
			return nil, asrerr.NewInferenceError(
				fmt.Sprintf("failed to create sherpa-onnx offline recognizer slot %d (provider=%s, model_dir=%s)",
					i, cfg.Provider, cfg.ModelDir), nil)
		}
		p.slots[i] = &slot{handle: handle}
	}

	return p, nil
}

// Recognize decodes audio (mono float32 PCM at sampleRate) using a free
// slot from the pool, blocking until one is available.
func (p *Pool) Recognize(audio []float32, sampleRate int) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	idx := p.acquire()
	handle := p.slots[idx].handle

	text, err := p.decode(handle, audio, sampleRate)

	p.release(idx)

	return text, err
}

func (p *Pool) acquire() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for i, s := range p.slots {
			if !s.inUse {
				s.inUse = true
				return i
			}
		}
		p.cond.Wait()
	}
}

func (p *Pool) release(idx int) {
	p.mu.Lock()
	p.slots[idx].inUse = false
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *Pool) decode(handle *sherpa.OfflineRecognizer, audio []float32, sampleRate int) (string, error) {
	stream := sherpa.NewOfflineStream(handle)
	if stream == nil {
		// Treated as silence rather than an error: a transient stream
		// allocation failure should not surface as a recognition error
		// to the caller.
		return "", nil
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, audio)
	handle.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return "", nil
	}

	return strings.TrimSpace(result.Text), nil
}

// Close releases every recognizer handle held by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.handle != nil {
			sherpa.DeleteOfflineRecognizer(s.handle)
			s.handle = nil
		}
	}
	return nil
}

// Size returns the number of decoding slots in the pool.
func (p *Pool) Size() int { return len(p.slots) }
