package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bucketsTTFR       = []float64{0.1, 0.2, 0.3, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0}
	bucketsDecode     = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0}
	bucketsSegment    = []float64{0.5, 1.0, 2.0, 5.0, 10.0, 15.0, 20.0, 30.0}
	bucketsRTF        = []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.75, 1.0, 1.5, 2.0}
	bucketsRequest    = []float64{0.5, 1.0, 2.0, 5.0, 10.0, 20.0, 30.0, 45.0, 60.0, 90.0, 120.0}
	bucketsPreprocess = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0}
	bucketsIO         = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0}
	bucketsAudio      = []float64{0.5, 1.0, 2.0, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0}
	bucketsConnection = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}
	bucketsSession    = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300}
	bucketsWords      = []float64{1, 2, 5, 10, 20, 50, 100, 200}
	bucketsRMS        = []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5}
)

// Metrics holds every Prometheus series exported by the server.
type Metrics struct {
	ttfr               *prometheus.HistogramVec
	rtf                *prometheus.HistogramVec
	rtfDecode          *prometheus.HistogramVec
	requestDuration    *prometheus.HistogramVec
	decodeDuration     prometheus.Histogram
	audioDuration      prometheus.Histogram
	segmentDuration    prometheus.Histogram
	preprocessDuration prometheus.Histogram
	ioDuration         prometheus.Histogram
	segmentRTF         prometheus.Histogram

	requestsTotal   *prometheus.CounterVec
	segmentsTotal   prometheus.Counter
	audioSecsTotal  prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	chunksTotal     prometheus.Counter
	bytesTotal      prometheus.Counter

	activeConnections  prometheus.Gauge
	currentRTF         prometheus.Gauge
	currentTTFR        prometheus.Gauge
	currentDecode      prometheus.Gauge
	currentRequest     prometheus.Gauge
	currentAudio       prometheus.Gauge
	currentRTFTotal    prometheus.Gauge
	currentPreprocess  prometheus.Gauge
	currentIO          prometheus.Gauge

	connectionDuration   prometheus.Histogram
	sessionDuration      prometheus.Histogram
	connectionsTotal     prometheus.Counter
	disconnectionsTotal  *prometheus.CounterVec
	sessionsTotal        prometheus.Counter
	activeSessions       prometheus.Gauge

	wordsPerRequest    prometheus.Histogram
	audioRMS           prometheus.Histogram
	emptyResultsTotal  prometheus.Counter
	wordsTotal         prometheus.Counter
	charactersTotal    prometheus.Counter
	silenceSegments    prometheus.Counter
	lowVolumeWarnings  prometheus.Counter
	speechRatio        prometheus.Gauge
}

// New registers and returns every metric exported under the gigaam_
// namespace. Register it once per process; passing a non-nil registerer
// other than the default lets tests use an isolated registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		ttfr: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gigaam_ttfr_seconds", Help: "Time to first result", Buckets: bucketsTTFR,
		}, []string{"mode"}),
		rtf: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gigaam_rtf", Help: "Real-time factor", Buckets: bucketsRTF,
		}, []string{"mode"}),
		rtfDecode: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gigaam_rtf_decode", Help: "Real-time factor for decode only", Buckets: bucketsRTF,
		}, []string{"mode"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gigaam_request_duration_seconds", Help: "Total request duration", Buckets: bucketsRequest,
		}, []string{"mode", "status"}),
		decodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_decode_duration_seconds", Help: "Decode duration per segment", Buckets: bucketsDecode,
		}),
		audioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_audio_duration_seconds", Help: "Audio duration per request", Buckets: bucketsAudio,
		}),
		segmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_segment_duration_seconds", Help: "Segment duration", Buckets: bucketsSegment,
		}),
		preprocessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_preprocess_duration_seconds", Help: "Preprocessing duration", Buckets: bucketsPreprocess,
		}),
		ioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_io_duration_seconds", Help: "I/O duration", Buckets: bucketsIO,
		}),
		segmentRTF: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_segment_rtf", Help: "RTF per segment", Buckets: bucketsRTF,
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaam_requests_total", Help: "Total requests",
		}, []string{"mode", "status"}),
		segmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_segments_total", Help: "Total segments processed",
		}),
		audioSecsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_audio_seconds_total", Help: "Cumulative audio duration",
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaam_errors_total", Help: "Total errors",
		}, []string{"error_type"}),
		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_chunks_total", Help: "Total audio chunks received",
		}),
		bytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_bytes_total", Help: "Total bytes received",
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_active_connections", Help: "Active WebSocket connections",
		}),
		currentRTF: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_rtf", Help: "Current RTF",
		}),
		currentTTFR: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_ttfr_seconds", Help: "Current TTFR",
		}),
		currentDecode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_decode_seconds", Help: "Current decode time",
		}),
		currentRequest: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_request_seconds", Help: "Current request duration",
		}),
		currentAudio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_audio_seconds", Help: "Current audio duration",
		}),
		currentRTFTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_rtf_total", Help: "Current total RTF",
		}),
		currentPreprocess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_preprocess_seconds", Help: "Current preprocess time",
		}),
		currentIO: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_current_io_seconds", Help: "Current I/O time",
		}),

		connectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_connection_duration_seconds", Help: "WebSocket connection duration", Buckets: bucketsConnection,
		}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_session_duration_seconds", Help: "Session duration", Buckets: bucketsSession,
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_connections_total", Help: "Total connections",
		}),
		disconnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaam_disconnections_total", Help: "Total disconnections",
		}, []string{"reason"}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_sessions_total", Help: "Total sessions",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_active_sessions", Help: "Active sessions",
		}),

		wordsPerRequest: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_words_per_request", Help: "Words per recognition request", Buckets: bucketsWords,
		}),
		audioRMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "gigaam_audio_rms_level", Help: "RMS level of input audio", Buckets: bucketsRMS,
		}),
		emptyResultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_empty_results_total", Help: "Empty result count",
		}),
		wordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_words_total", Help: "Cumulative words",
		}),
		charactersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_characters_total", Help: "Cumulative characters",
		}),
		silenceSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_silence_segments_total", Help: "Silence segments",
		}),
		lowVolumeWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "gigaam_low_volume_warnings_total", Help: "Low volume warnings",
		}),
		speechRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gigaam_speech_ratio", Help: "Speech vs silence ratio",
		}),
	}

	return m
}

// ObserveTTFR records a time-to-first-result sample for the given
// transport mode; only the streaming path records it, as "websocket".
func (m *Metrics) ObserveTTFR(sec float64, mode string) {
	m.ttfr.WithLabelValues(mode).Observe(sec)
	m.currentTTFR.Set(sec)
}

// ObserveSegment records per-segment decode timing.
func (m *Metrics) ObserveSegment(audioSec, decodeSec float64) {
	m.decodeDuration.Observe(decodeSec)
	m.segmentDuration.Observe(audioSec)
	m.segmentsTotal.Inc()
	m.audioSecsTotal.Add(audioSec)

	if audioSec > 0 {
		m.segmentRTF.Observe(decodeSec / audioSec)
	}
	m.currentDecode.Set(decodeSec)
}

// ObserveRequest records end-to-end request metrics for either the
// streaming or the upload path.
func (m *Metrics) ObserveRequest(totalSec, audioSec, decodeSec float64, chunkCount int, bytesCount int64, preprocessSec, ioSec float64, mode string, success bool) {
	status := "failed"
	if success {
		status = "success"
	}

	m.requestsTotal.WithLabelValues(mode, status).Inc()
	m.requestDuration.WithLabelValues(mode, status).Observe(totalSec)

	m.audioDuration.Observe(audioSec)
	m.preprocessDuration.Observe(preprocessSec)
	m.ioDuration.Observe(ioSec)

	if audioSec > 0 {
		rtf := totalSec / audioSec
		rtfDecode := decodeSec / audioSec
		m.rtf.WithLabelValues(mode).Observe(rtf)
		m.rtfDecode.WithLabelValues(mode).Observe(rtfDecode)
		m.currentRTF.Set(rtf)
		m.currentRTFTotal.Set(rtf)
	}

	m.chunksTotal.Add(float64(chunkCount))
	m.bytesTotal.Add(float64(bytesCount))

	m.currentRequest.Set(totalSec)
	m.currentAudio.Set(audioSec)
	m.currentPreprocess.Set(preprocessSec)
	m.currentIO.Set(ioSec)
}

// ObserveError tags and counts an error by kind (e.g. "invalid_audio",
// "capacity_exceeded", "internal_error").
func (m *Metrics) ObserveError(errorType string) {
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

// ConnectionOpened records a new WebSocket connection.
func (m *Metrics) ConnectionOpened() {
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

// ConnectionClosed records a connection closing, tagged with the close
// reason (e.g. "normal", "protocol_violation", "message_too_large",
// "internal_error", "idle_timeout", "server_shutdown").
func (m *Metrics) ConnectionClosed(reason string, durationSec float64) {
	m.activeConnections.Dec()
	m.disconnectionsTotal.WithLabelValues(reason).Inc()
	m.connectionDuration.Observe(durationSec)
}

// SessionStarted records a session entering ACTIVE state.
func (m *Metrics) SessionStarted() {
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

// SessionEnded records a session finalizing.
func (m *Metrics) SessionEnded(durationSec float64) {
	m.activeSessions.Dec()
	m.sessionDuration.Observe(durationSec)
}

// RecordResult tallies word/character counts for a recognized text, or
// counts an empty result when text is blank.
func (m *Metrics) RecordResult(text string) {
	if text == "" {
		m.emptyResultsTotal.Inc()
		return
	}

	words := len(strings.Fields(text))
	m.wordsTotal.Add(float64(words))
	m.charactersTotal.Add(float64(len(text)))
	m.wordsPerRequest.Observe(float64(words))
}

// RecordAudioLevel observes input RMS and flags low-volume input.
func (m *Metrics) RecordAudioLevel(rms float64) {
	m.audioRMS.Observe(rms)
	if rms < 0.005 {
		m.lowVolumeWarnings.Inc()
	}
}

// RecordSilence counts a segment that produced no text: one dropped for
// being below the minimum audio duration, or one whose recognition
// returned empty text or an error.
func (m *Metrics) RecordSilence() {
	m.silenceSegments.Inc()
}

// SetSpeechRatio records the fraction of a session's audio classified as
// speech.
func (m *Metrics) SetSpeechRatio(ratio float64) {
	m.speechRatio.Set(ratio)
}

