package config

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func validConfig() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8081, Threads: 4},
		Recognizer: RecognizerConfig{
			ModelDir:           "./models/giga-am-v3",
			Provider:           "cpu",
			NumThreads:         4,
			SampleRate:         16000,
			FeatureDim:         64,
			RecognizerPoolSize: 4,
		},
		VAD: VADConfig{
			ModelPath:   "./models/silero_vad.onnx",
			Threshold:   0.5,
			MinSilence:  0.5,
			MinSpeech:   0.25,
			MaxSpeech:   20.0,
			WindowSize:  512,
			ContextSize: 64,
		},
		Limits: LimitsConfig{
			SilenceThreshold:      0.008,
			MinAudioSec:           0.5,
			MaxAudioSec:           30.0,
			MaxUploadBytes:        100 << 20,
			MaxWSMessageBytes:     4 << 20,
			MaxConcurrentRequests: 8,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
		},
		{
			name:        "empty host",
			mutate:      func(c *Config) { c.Server.Host = "" },
			expectError: true,
		},
		{
			name:        "empty model_dir",
			mutate:      func(c *Config) { c.Recognizer.ModelDir = "" },
			expectError: true,
		},
		{
			name:        "non-positive feature_dim",
			mutate:      func(c *Config) { c.Recognizer.FeatureDim = 0 },
			expectError: true,
		},
		{
			name:        "empty vad model path",
			mutate:      func(c *Config) { c.VAD.ModelPath = "" },
			expectError: true,
		},
		{
			name:        "context size out of range",
			mutate:      func(c *Config) { c.VAD.ContextSize = c.VAD.WindowSize },
			expectError: true,
		},
		{
			name:        "non-positive max_upload_bytes",
			mutate:      func(c *Config) { c.Limits.MaxUploadBytes = 0 },
			expectError: true,
		},
		{
			name:        "non-positive max_ws_message_bytes",
			mutate:      func(c *Config) { c.Limits.MaxWSMessageBytes = 0 },
			expectError: true,
		},
		{
			name:        "invalid logging level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "invalid logging format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate(testLogger())
			if tt.expectError && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigValidationClamping(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		check   func(*testing.T, Config)
	}{
		{
			name:   "threads clamped to max",
			mutate: func(c *Config) { c.Server.Threads = 1000 },
			check: func(t *testing.T, c Config) {
				if c.Server.Threads != 256 {
					t.Errorf("expected threads clamped to 256, got %d", c.Server.Threads)
				}
			},
		},
		{
			name:   "sample_rate clamped to min",
			mutate: func(c *Config) { c.Recognizer.SampleRate = 1000 },
			check: func(t *testing.T, c Config) {
				if c.Recognizer.SampleRate != 8000 {
					t.Errorf("expected sample_rate clamped to 8000, got %d", c.Recognizer.SampleRate)
				}
			},
		},
		{
			name:   "vad_threshold clamped to max",
			mutate: func(c *Config) { c.VAD.Threshold = 1.5 },
			check: func(t *testing.T, c Config) {
				if c.VAD.Threshold != 0.99 {
					t.Errorf("expected vad_threshold clamped to 0.99, got %f", c.VAD.Threshold)
				}
			},
		},
		{
			name:   "vad_window_size clamped to max",
			mutate: func(c *Config) { c.VAD.WindowSize = 8192; c.VAD.ContextSize = 64 },
			check: func(t *testing.T, c Config) {
				if c.VAD.WindowSize != 4096 {
					t.Errorf("expected vad_window_size clamped to 4096, got %d", c.VAD.WindowSize)
				}
			},
		},
		{
			name:   "vad_max_speech fixed when <= min_speech",
			mutate: func(c *Config) { c.VAD.MaxSpeech = 0.1; c.VAD.MinSpeech = 0.25 },
			check: func(t *testing.T, c Config) {
				if c.VAD.MaxSpeech != c.VAD.MinSpeech+10.0 {
					t.Errorf("expected vad_max_speech fixed to min_speech+10, got %f", c.VAD.MaxSpeech)
				}
			},
		},
		{
			name:   "max_audio_sec fixed when <= min_audio_sec",
			mutate: func(c *Config) { c.Limits.MaxAudioSec = 0.1; c.Limits.MinAudioSec = 0.5 },
			check: func(t *testing.T, c Config) {
				if c.Limits.MaxAudioSec != c.Limits.MinAudioSec+30.0 {
					t.Errorf("expected max_audio_sec fixed to min_audio_sec+30, got %f", c.Limits.MaxAudioSec)
				}
			},
		},
		{
			name:   "max_concurrent_requests auto-resolved from threads",
			mutate: func(c *Config) { c.Limits.MaxConcurrentRequests = 0; c.Server.Threads = 4 },
			check: func(t *testing.T, c Config) {
				if c.Limits.MaxConcurrentRequests != 8 {
					t.Errorf("expected max_concurrent_requests resolved to 8, got %d", c.Limits.MaxConcurrentRequests)
				}
			},
		},
		{
			name:   "recognizer_pool_size auto-resolved from threads",
			mutate: func(c *Config) { c.Recognizer.RecognizerPoolSize = 0; c.Server.Threads = 4 },
			check: func(t *testing.T, c Config) {
				if c.Recognizer.RecognizerPoolSize != 4 {
					t.Errorf("expected recognizer_pool_size resolved to 4, got %d", c.Recognizer.RecognizerPoolSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			if err := cfg.Validate(testLogger()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MODEL_DIR", "/models/giga-am")
	t.Setenv("VAD_MODEL", "/models/silero_vad.onnx")
	t.Setenv("SAMPLE_RATE", "16000")

	cfg, err := Load(testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Recognizer.ModelDir != "/models/giga-am" {
		t.Errorf("expected model_dir override, got %s", cfg.Recognizer.ModelDir)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HOST", "HTTP_PORT", "THREADS", "MODEL_DIR", "VAD_MODEL", "PROVIDER",
		"NUM_THREADS", "SAMPLE_RATE", "FEATURE_DIM", "VAD_THRESHOLD",
		"VAD_MIN_SILENCE", "VAD_MIN_SPEECH", "VAD_MAX_SPEECH", "VAD_WINDOW_SIZE",
		"VAD_CONTEXT_SIZE", "SILENCE_THRESHOLD", "MIN_AUDIO_SEC", "MAX_AUDIO_SEC",
		"MAX_UPLOAD_BYTES", "MAX_WS_MESSAGE_BYTES", "RECOGNIZER_POOL_SIZE",
		"MAX_CONCURRENT_REQUESTS", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load(testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("expected default port 8081, got %d", cfg.Server.Port)
	}
	if cfg.Recognizer.Provider != "cpu" {
		t.Errorf("expected default provider cpu, got %s", cfg.Recognizer.Provider)
	}
	if cfg.VAD.WindowSize != 512 {
		t.Errorf("expected default vad_window_size 512, got %d", cfg.VAD.WindowSize)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()

	if got, want := cfg.VAD.GetMinSilenceDuration().Seconds(), 0.5; got != want {
		t.Errorf("GetMinSilenceDuration() = %v, want %v", got, want)
	}
	if got, want := cfg.VAD.GetMinSpeechDuration().Seconds(), 0.25; got != want {
		t.Errorf("GetMinSpeechDuration() = %v, want %v", got, want)
	}
	if got, want := cfg.VAD.GetMaxSpeechDuration().Seconds(), 20.0; got != want {
		t.Errorf("GetMaxSpeechDuration() = %v, want %v", got, want)
	}
	if got, want := cfg.Limits.GetMinAudioDuration().Seconds(), 0.5; got != want {
		t.Errorf("GetMinAudioDuration() = %v, want %v", got, want)
	}
	if got, want := cfg.Limits.GetMaxAudioDuration().Seconds(), 30.0; got != want {
		t.Errorf("GetMaxAudioDuration() = %v, want %v", got, want)
	}
}
