package server

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/gigaam-stream-server/internal/audio"
)

//go:embed static/index.html
var staticFiles embed.FS

type recognizeResponse struct {
	Text     string  `json:"text"`
	Duration float32 `json:"duration"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/recognize", s.handleRecognize)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleIndex)
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"provider": s.cfg.Recognizer.Provider,
		"threads":  s.cfg.Server.Threads,
	})
}

// handleIndex serves the embedded static test client at GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// handleRecognize implements POST /recognize: a one-shot multipart file
// upload, admission-limited by a concurrent-request semaphore.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	select {
	case s.uploadSem <- struct{}{}:
		defer func() { <-s.uploadSem }()
	default:
		s.metrics.ObserveError("capacity_exceeded")
		writeJSONError(w, http.StatusServiceUnavailable, "server at capacity, try again later")
		return
	}

	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Limits.MaxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing or invalid 'file' field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err.Error() == "http: request body too large" {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	preprocessStart := time.Now()
	decoded, err := audio.DecodeWAV(data, s.cfg.Recognizer.SampleRate)
	preprocessSec := time.Since(preprocessStart).Seconds()
	if err != nil {
		s.metrics.ObserveError("invalid_audio")
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	decodeStart := time.Now()
	text, err := s.pool.Recognize(decoded.Samples, s.cfg.Recognizer.SampleRate)
	decodeSec := time.Since(decodeStart).Seconds()
	if err != nil {
		s.metrics.ObserveError("internal_error")
		writeJSONError(w, http.StatusInternalServerError, "recognition failed")
		return
	}

	s.metrics.RecordResult(text)
	s.metrics.ObserveSegment(float64(decoded.Duration), decodeSec)
	s.metrics.ObserveRequest(time.Since(start).Seconds(), float64(decoded.Duration), decodeSec,
		1, int64(len(data)), preprocessSec, 0, "upload", true)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recognizeResponse{Text: text, Duration: decoded.Duration})
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}

