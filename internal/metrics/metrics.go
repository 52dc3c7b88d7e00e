// Package metrics holds the Prometheus collectors for the voice pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicepipe"

// Metrics contains all Prometheus metrics for the pipeline and server.
type Metrics struct {
	registry *prometheus.Registry

	// Transcription
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	ChunkDuration         prometheus.Histogram
	Transcripts           prometheus.Counter

	// Synthesis
	SynthesisSegments *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram
	AudioSeconds      prometheus.Counter

	// Chat
	ChatTurns    *prometheus.CounterVec
	ChatDuration prometheus.Histogram

	// Streams and connections
	ActiveStreams  *prometheus.GaugeVec
	RateLimited    *prometheus.CounterVec
	WorkerInFlight prometheus.GaugeFunc
}

// New creates and registers all metrics on a fresh registry that also
// carries the Go runtime and process collectors. inFlight, when non-nil,
// reports the number of jobs running on the worker pool.
func New(inFlight func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_requests_total",
			Help:      "Transcription calls by result (ok, empty, failed)",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Wall time of transcription calls",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Audio length of flushed chunks",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		Transcripts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Transcript events emitted",
		}),

		SynthesisSegments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_segments_total",
			Help:      "Synthesized segments by result (ok, cached, empty, failed)",
		}, []string{"result"}),
		SynthesisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Wall time of synthesis calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		AudioSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesized_audio_seconds_total",
			Help:      "Seconds of audio produced",
		}),

		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Agent turns by result (ok, failed)",
		}, []string{"result"}),
		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_duration_seconds",
			Help:      "Wall time from user turn to complete reply",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		ActiveStreams: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streams currently running by kind",
		}, []string{"kind"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_messages_total",
			Help:      "Websocket messages rejected by the per-connection limiter",
		}, []string{"endpoint"}),
	}

	if inFlight != nil {
		m.WorkerInFlight = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_jobs_active",
			Help:      "Jobs currently running on the worker pool",
		}, inFlight)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTranscription records one transcription call.
func (m *Metrics) RecordTranscription(chunk, took time.Duration, text string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "failed"
	case text == "":
		result = "empty"
	default:
		m.Transcripts.Inc()
	}
	m.TranscriptionRequests.WithLabelValues(result).Inc()
	m.TranscriptionDuration.Observe(took.Seconds())
	m.ChunkDuration.Observe(chunk.Seconds())
}

// RecordSegment records one synthesized segment. result is one of ok,
// cached, empty or failed.
func (m *Metrics) RecordSegment(result string, took, audio time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisSegments.WithLabelValues(result).Inc()
	if result == "ok" {
		m.SynthesisDuration.Observe(took.Seconds())
	}
	m.AudioSeconds.Add(audio.Seconds())
}

// RecordChatTurn records one agent turn.
func (m *Metrics) RecordChatTurn(took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.ChatTurns.WithLabelValues(result).Inc()
	m.ChatDuration.Observe(took.Seconds())
}

// StreamStarted increments the active stream gauge for kind and returns the
// matching decrement.
func (m *Metrics) StreamStarted(kind string) func() {
	if m == nil {
		return func() {}
	}
	g := m.ActiveStreams.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

// RecordRateLimited counts a rejected websocket message.
func (m *Metrics) RecordRateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(endpoint).Inc()
}
