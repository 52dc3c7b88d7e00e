package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordTranscription(t *testing.T) {
	m := New(nil)

	m.RecordTranscription(3*time.Second, 200*time.Millisecond, "hello", nil)
	m.RecordTranscription(3*time.Second, 100*time.Millisecond, "", nil)
	m.RecordTranscription(time.Second, time.Second, "", errors.New("boom"))

	tests := []struct {
		result string
		want   float64
	}{
		{"ok", 1},
		{"empty", 1},
		{"failed", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.TranscriptionRequests.WithLabelValues(tt.result)); got != tt.want {
			t.Errorf("requests{%s} = %v, want %v", tt.result, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(m.Transcripts); got != 1 {
		t.Errorf("transcripts = %v, want 1", got)
	}
}

func TestMetrics_SegmentsAndStreams(t *testing.T) {
	m := New(func() float64 { return 2 })

	m.RecordSegment("ok", 50*time.Millisecond, time.Second)
	m.RecordSegment("cached", 0, 500*time.Millisecond)
	if got := testutil.ToFloat64(m.AudioSeconds); got != 1.5 {
		t.Errorf("audio seconds = %v", got)
	}

	done := m.StreamStarted("tts")
	if got := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("tts")); got != 1 {
		t.Errorf("active = %v", got)
	}
	done()
	if got := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("tts")); got != 0 {
		t.Errorf("active after done = %v", got)
	}
	if got := testutil.ToFloat64(m.WorkerInFlight); got != 2 {
		t.Errorf("worker gauge = %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.RecordChatTurn(time.Second, nil)
	m.RecordRateLimited("/ws/stt")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`voicepipe_chat_turns_total{result="ok"} 1`,
		`voicepipe_rate_limited_messages_total{endpoint="/ws/stt"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTranscription(time.Second, time.Second, "x", nil)
	m.RecordSegment("ok", 0, 0)
	m.RecordChatTurn(0, nil)
	m.RecordRateLimited("x")
	m.StreamStarted("stt")()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler code = %d", rec.Code)
	}
}
