package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/gigaam-stream-server/internal/asrerr"
	"github.com/skypro1111/gigaam-stream-server/internal/config"
	"github.com/skypro1111/gigaam-stream-server/internal/metrics"
	"github.com/skypro1111/gigaam-stream-server/internal/recognizer"
	"github.com/skypro1111/gigaam-stream-server/internal/server"
)

const (
	serviceName    = "gigaam-stream-server"
	serviceVersion = "1.0.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(bootstrapLogger)
	if err != nil {
		var configErr *asrerr.ConfigError
		if errors.As(err, &configErr) {
			bootstrapLogger.Error("invalid configuration", slog.String("error", err.Error()))
			return 2
		}
		bootstrapLogger.Error("failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	logger := newLogger(cfg.Logging)

	logger.Info("starting service",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.Int("http_port", cfg.Server.Port),
		slog.Int("threads", cfg.Server.Threads),
		slog.String("provider", cfg.Recognizer.Provider),
		slog.String("model_dir", cfg.Recognizer.ModelDir),
		slog.Int("sample_rate", cfg.Recognizer.SampleRate),
		slog.String("vad_model", cfg.VAD.ModelPath),
	)

	pool, err := recognizer.NewPool(recognizer.Config{
		ModelDir:   cfg.Recognizer.ModelDir,
		Provider:   cfg.Recognizer.Provider,
		NumThreads: cfg.Recognizer.NumThreads,
		SampleRate: cfg.Recognizer.SampleRate,
		FeatureDim: cfg.Recognizer.FeatureDim,
		PoolSize:   cfg.Recognizer.RecognizerPoolSize,
	})
	if err != nil {
		logger.Error("failed to initialize recognizer pool", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("recognizer pool initialized", slog.Int("pool_size", pool.Size()))

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	srv := server.New(cfg, logger, pool, appMetrics)
	srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("service stopped")
	return 0
}

// newLogger builds the process-wide structured logger from configuration,
// falling back to stdout if the configured output path can't be opened.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}
