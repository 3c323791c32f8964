package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestConnectionLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened()
	if got := gaugeValue(t, m.activeConnections); got != 1 {
		t.Errorf("expected active_connections=1, got %f", got)
	}
	if got := counterValue(t, m.connectionsTotal); got != 1 {
		t.Errorf("expected connections_total=1, got %f", got)
	}

	m.ConnectionClosed("normal", 1.5)
	if got := gaugeValue(t, m.activeConnections); got != 0 {
		t.Errorf("expected active_connections=0, got %f", got)
	}
}

func TestRecordResultEmpty(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordResult("")
	if got := counterValue(t, m.emptyResultsTotal); got != 1 {
		t.Errorf("expected empty_results_total=1, got %f", got)
	}
}

func TestRecordResultCountsWords(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordResult("привет как дела")
	if got := counterValue(t, m.wordsTotal); got != 3 {
		t.Errorf("expected words_total=3, got %f", got)
	}
}

func TestRecordAudioLevelFlagsLowVolume(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAudioLevel(0.001)
	if got := counterValue(t, m.lowVolumeWarnings); got != 1 {
		t.Errorf("expected low_volume_warnings_total=1, got %f", got)
	}

	m.RecordAudioLevel(0.5)
	if got := counterValue(t, m.lowVolumeWarnings); got != 1 {
		t.Errorf("expected low_volume_warnings_total to stay at 1, got %f", got)
	}
}

func TestObserveRequestSetsRTFOnlyWithAudio(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest(2.0, 0, 1.0, 1, 100, 0.1, 0.1, "websocket", true)
	if got := gaugeValue(t, m.currentRTF); got != 0 {
		t.Errorf("expected currentRTF untouched at 0 for zero audio duration, got %f", got)
	}

	m.ObserveRequest(2.0, 1.0, 1.0, 1, 100, 0.1, 0.1, "websocket", true)
	if got := gaugeValue(t, m.currentRTF); got != 2.0 {
		t.Errorf("expected currentRTF=2.0, got %f", got)
	}
}
