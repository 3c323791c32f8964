package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skypro1111/gigaam-stream-server/internal/config"
	"github.com/skypro1111/gigaam-stream-server/internal/metrics"
	"github.com/skypro1111/gigaam-stream-server/internal/recognizer"
	"github.com/skypro1111/gigaam-stream-server/internal/session"
	"github.com/skypro1111/gigaam-stream-server/internal/stream"
	"github.com/skypro1111/gigaam-stream-server/internal/vad"
)

// Server is the top-level HTTP/WebSocket server: it wires the recognizer
// pool, the connection manager, and the metrics sink into one set of
// routes, and owns graceful shutdown.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	pool      *recognizer.Pool
	streamMgr *stream.Manager

	httpServer *http.Server
	uploadSem  chan struct{}
	startTime  time.Time
}

// New constructs a Server. pool and metrics are shared across the upload
// and streaming paths; the connection manager builds one VAD instance and
// one Session per WebSocket connection.
func New(cfg *config.Config, logger *slog.Logger, pool *recognizer.Pool, m *metrics.Metrics) *Server {
	streamMgr := stream.NewManager(logger, wsIdleTimeout, stream.ManagerConfig{
		VADConfig: vad.Config{
			ModelPath:   cfg.VAD.ModelPath,
			Threshold:   cfg.VAD.Threshold,
			MinSilence:  cfg.VAD.GetMinSilenceDuration(),
			MinSpeech:   cfg.VAD.GetMinSpeechDuration(),
			MaxSpeech:   cfg.VAD.GetMaxSpeechDuration(),
			SampleRate:  cfg.Recognizer.SampleRate,
			WindowSize:  cfg.VAD.WindowSize,
			ContextSize: cfg.VAD.ContextSize,
		},
		SessionConfig: session.Config{
			SampleRate:  cfg.Recognizer.SampleRate,
			WindowSize:  cfg.VAD.WindowSize,
			MinAudioSec: cfg.Limits.MinAudioSec,
			MaxAudioSec: cfg.Limits.MaxAudioSec,
		},
		Pool:    pool,
		Metrics: m,
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		pool:      pool,
		streamMgr: streamMgr,
		uploadSem: make(chan struct{}, cfg.Limits.MaxConcurrentRequests),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  0, // streaming connections hold the socket open
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving HTTP and WebSocket traffic; it returns immediately
// and logs asynchronous errors.
func (s *Server) Start() {
	s.logger.Info("starting server", slog.String("address", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the HTTP listener and closes every live
// connection.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")

	err := s.httpServer.Shutdown(ctx)

	s.streamMgr.Stop()
	if closeErr := s.pool.Close(); closeErr != nil {
		s.logger.Warn("error closing recognizer pool", slog.String("error", closeErr.Error()))
	}

	return err
}
