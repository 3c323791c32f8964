package recognizer

import (
	"os"
	"sync"
	"testing"
)

const testModelDir = "models/sherpa-onnx-nemo-transducer-punct-giga-am-v3-russian-2025-12-16"

func modelExists() bool {
	_, err := os.Stat(testModelDir + "/encoder.int8.onnx")
	return err == nil
}

func testConfig() Config {
	return Config{
		ModelDir:   testModelDir,
		Provider:   "cpu",
		NumThreads: 2,
		SampleRate: 16000,
		FeatureDim: 64,
		PoolSize:   2,
	}
}

func TestNewPoolRejectsEmptyModelDir(t *testing.T) {
	cfg := testConfig()
	cfg.ModelDir = ""

	if _, err := NewPool(cfg); err == nil {
		t.Error("expected error for empty model_dir")
	}
}

func TestPoolRecognizeEmptyAudio(t *testing.T) {
	if !modelExists() {
		t.Skip("model not found")
	}

	pool, err := NewPool(testConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	text, err := pool.Recognize(nil, 16000)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text for empty audio, got %q", text)
	}
}

func TestPoolRecognizeSilence(t *testing.T) {
	if !modelExists() {
		t.Skip("model not found")
	}

	pool, err := NewPool(testConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	silence := make([]float32, 16000)
	text, err := pool.Recognize(silence, 16000)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(text) > 5 {
		t.Errorf("expected near-empty text for silence, got %q", text)
	}
}

func TestPoolConcurrentRecognize(t *testing.T) {
	if !modelExists() {
		t.Skip("model not found")
	}

	pool, err := NewPool(testConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	audio := make([]float32, 16000)

	var wg sync.WaitGroup
	for i := 0; i < pool.Size()*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Recognize(audio, 16000); err != nil {
				t.Errorf("Recognize failed: %v", err)
			}
		}()
	}
	wg.Wait()
}
