package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/skypro1111/gigaam-stream-server/internal/asrerr"
)

// Config represents the complete service configuration, loaded from
// environment variables.
type Config struct {
	Server     ServerConfig
	Recognizer RecognizerConfig
	VAD        VADConfig
	Limits     LimitsConfig
	Logging    LoggingConfig
}

// ServerConfig contains HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Host    string `env:"HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"HTTP_PORT" envDefault:"8081"`
	Threads int    `env:"THREADS" envDefault:"0"`
}

// RecognizerConfig contains ASR model and pool configuration.
type RecognizerConfig struct {
	ModelDir           string `env:"MODEL_DIR" envDefault:"models/sherpa-onnx-nemo-transducer-punct-giga-am-v3-russian-2025-12-16"`
	Provider           string `env:"PROVIDER" envDefault:"cpu"`
	NumThreads         int    `env:"NUM_THREADS" envDefault:"4"`
	SampleRate         int    `env:"SAMPLE_RATE" envDefault:"16000"`
	FeatureDim         int    `env:"FEATURE_DIM" envDefault:"64"`
	RecognizerPoolSize int    `env:"RECOGNIZER_POOL_SIZE" envDefault:"0"`
}

// VADConfig contains Voice Activity Detection configuration.
type VADConfig struct {
	ModelPath   string  `env:"VAD_MODEL" envDefault:"models/silero_vad.onnx"`
	Threshold   float32 `env:"VAD_THRESHOLD" envDefault:"0.5"`
	MinSilence  float64 `env:"VAD_MIN_SILENCE" envDefault:"0.5"`
	MinSpeech   float64 `env:"VAD_MIN_SPEECH" envDefault:"0.25"`
	MaxSpeech   float64 `env:"VAD_MAX_SPEECH" envDefault:"20.0"`
	WindowSize  int     `env:"VAD_WINDOW_SIZE" envDefault:"512"`
	ContextSize int     `env:"VAD_CONTEXT_SIZE" envDefault:"64"`
}

// LimitsConfig contains resource and admission limits.
type LimitsConfig struct {
	SilenceThreshold      float32 `env:"SILENCE_THRESHOLD" envDefault:"0.008"`
	MinAudioSec           float64 `env:"MIN_AUDIO_SEC" envDefault:"0.5"`
	MaxAudioSec           float64 `env:"MAX_AUDIO_SEC" envDefault:"30.0"`
	MaxUploadBytes        int64   `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	MaxWSMessageBytes     int64   `env:"MAX_WS_MESSAGE_BYTES" envDefault:"4194304"`
	MaxConcurrentRequests int     `env:"MAX_CONCURRENT_REQUESTS" envDefault:"0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	Output string `env:"LOG_OUTPUT" envDefault:"stdout"`
}

// Load reads configuration from environment variables and validates it,
// clamping soft-bounded fields and rejecting fields with no sensible
// default.
func Load(logger *slog.Logger) (*Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return nil, asrerr.NewConfigError("failed to parse environment: %v", err)
	}

	if config.Server.Threads <= 0 {
		config.Server.Threads = runtime.NumCPU()
	}

	if err := config.Validate(logger); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate(logger *slog.Logger) error {
	if err := c.Server.Validate(logger); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Recognizer.Validate(logger, c.Server.Threads); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}

	if err := c.VAD.Validate(logger); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Limits.Validate(logger, c.Server.Threads); err != nil {
		return fmt.Errorf("limits config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate(logger *slog.Logger) error {
	if s.Port < 1 || s.Port > 65535 {
		return asrerr.NewConfigError("http_port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Host == "" {
		return asrerr.NewConfigError("host cannot be empty")
	}

	clampInt(logger, &s.Threads, 1, 256, "threads")

	return nil
}

// Validate validates recognizer configuration.
func (r *RecognizerConfig) Validate(logger *slog.Logger, threads int) error {
	if r.ModelDir == "" {
		return asrerr.NewConfigError("model_dir cannot be empty")
	}

	clampInt(logger, &r.NumThreads, 1, 128, "num_threads")
	clampInt(logger, &r.SampleRate, 8000, 48000, "sample_rate")

	if r.FeatureDim <= 0 {
		return asrerr.NewConfigError("feature_dim must be positive, got %d", r.FeatureDim)
	}

	if r.RecognizerPoolSize == 0 {
		r.RecognizerPoolSize = threads
	}
	clampInt(logger, &r.RecognizerPoolSize, 1, 256, "recognizer_pool_size")

	return nil
}

// Validate validates VAD configuration.
func (v *VADConfig) Validate(logger *slog.Logger) error {
	if v.ModelPath == "" {
		return asrerr.NewConfigError("vad_model cannot be empty")
	}

	clampFloat32(logger, &v.Threshold, 0.01, 0.99, "vad_threshold")
	clampInt(logger, &v.WindowSize, 64, 4096, "vad_window_size")

	if v.ContextSize < 0 || v.ContextSize >= v.WindowSize {
		return asrerr.NewConfigError("vad_context_size must be in [0, vad_window_size), got %d", v.ContextSize)
	}

	if v.MinSilence < 0.01 {
		logger.Warn("clamping vad_min_silence", slog.Float64("value", v.MinSilence), slog.Float64("to", 0.01))
		v.MinSilence = 0.01
	}
	if v.MinSpeech < 0.01 {
		logger.Warn("clamping vad_min_speech", slog.Float64("value", v.MinSpeech), slog.Float64("to", 0.01))
		v.MinSpeech = 0.01
	}
	if v.MaxSpeech <= v.MinSpeech {
		fixed := v.MinSpeech + 10.0
		logger.Warn("fixing vad_max_speech <= vad_min_speech",
			slog.Float64("vad_max_speech", v.MaxSpeech),
			slog.Float64("vad_min_speech", v.MinSpeech),
			slog.Float64("fixed_to", fixed))
		v.MaxSpeech = fixed
	}

	return nil
}

// Validate validates resource and admission limits.
func (l *LimitsConfig) Validate(logger *slog.Logger, threads int) error {
	if l.MinAudioSec < 0 {
		logger.Warn("clamping min_audio_sec", slog.Float64("value", l.MinAudioSec), slog.Float64("to", 0))
		l.MinAudioSec = 0
	}
	if l.MaxAudioSec <= l.MinAudioSec {
		fixed := l.MinAudioSec + 30.0
		logger.Warn("fixing max_audio_sec <= min_audio_sec",
			slog.Float64("max_audio_sec", l.MaxAudioSec),
			slog.Float64("min_audio_sec", l.MinAudioSec),
			slog.Float64("fixed_to", fixed))
		l.MaxAudioSec = fixed
	}

	if l.MaxUploadBytes <= 0 {
		return asrerr.NewConfigError("max_upload_bytes must be positive, got %d", l.MaxUploadBytes)
	}

	if l.MaxWSMessageBytes <= 0 {
		return asrerr.NewConfigError("max_ws_message_bytes must be positive, got %d", l.MaxWSMessageBytes)
	}

	if l.MaxConcurrentRequests == 0 {
		l.MaxConcurrentRequests = threads * 2
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return asrerr.NewConfigError("log level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return asrerr.NewConfigError("log format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

func clampInt(logger *slog.Logger, v *int, lo, hi int, name string) {
	clamped := *v
	if clamped < lo {
		clamped = lo
	}
	if clamped > hi {
		clamped = hi
	}
	if clamped != *v {
		logger.Warn("clamping "+name, slog.Int("value", *v), slog.Int("lo", lo), slog.Int("hi", hi), slog.Int("clamped_to", clamped))
		*v = clamped
	}
}

func clampFloat32(logger *slog.Logger, v *float32, lo, hi float32, name string) {
	clamped := *v
	if clamped < lo {
		clamped = lo
	}
	if clamped > hi {
		clamped = hi
	}
	if clamped != *v {
		logger.Warn("clamping "+name, slog.Float64("value", float64(*v)), slog.Float64("lo", float64(lo)), slog.Float64("hi", float64(hi)), slog.Float64("clamped_to", float64(clamped)))
		*v = clamped
	}
}

// GetMinSilenceDuration returns the minimum silence duration as a time.Duration.
func (v *VADConfig) GetMinSilenceDuration() time.Duration {
	return time.Duration(v.MinSilence * float64(time.Second))
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration.
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeech * float64(time.Second))
}

// GetMaxSpeechDuration returns the maximum speech duration as a time.Duration.
func (v *VADConfig) GetMaxSpeechDuration() time.Duration {
	return time.Duration(v.MaxSpeech * float64(time.Second))
}

// GetMinAudioDuration returns the minimum accepted audio duration as a time.Duration.
func (l *LimitsConfig) GetMinAudioDuration() time.Duration {
	return time.Duration(l.MinAudioSec * float64(time.Second))
}

// GetMaxAudioDuration returns the maximum accepted audio duration as a time.Duration.
func (l *LimitsConfig) GetMaxAudioDuration() time.Duration {
	return time.Duration(l.MaxAudioSec * float64(time.Second))
}
