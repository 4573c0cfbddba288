// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinical_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsSuccess prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionDuration prometheus.Histogram
	FallbackRetries prometheus.Counter

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	ChunksReceived     prometheus.Counter
	ChunksDropped      *prometheus.CounterVec
	BufferEvictions    prometheus.Counter

	// Backpressure metrics
	BackpressureWaits    prometheus.Counter
	BackpressureTimeouts prometheus.Counter

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	PersistErrors      prometheus.Counter

	// PII metrics
	PiiEntitiesMasked *prometheus.CounterVec

	// Event publish metrics
	EventPublishTotal   *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	EventPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of transcription sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active transcription sessions",
		}),
		SessionsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_success_total",
			Help:      "Total number of sessions closed normally",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions removed due to failure",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of transcription sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		FallbackRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_retries_total",
			Help:      "Total number of provider fallback reconnect attempts",
		}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes accepted",
		}),
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks accepted",
		}),
		ChunksDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped",
		}, []string{"reason"}),
		BufferEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_evictions_total",
			Help:      "Total pre-connect buffered chunks evicted at capacity",
		}),

		BackpressureWaits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_waits_total",
			Help:      "Total bounded waits for a sink drain signal",
		}),
		BackpressureTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_timeouts_total",
			Help:      "Total drain waits that exceeded the bound",
		}),

		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total partial transcript results processed",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total final transcript segments processed",
		}),
		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_persist_errors_total",
			Help:      "Total failures appending final segments to storage",
		}),

		PiiEntitiesMasked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_entities_masked_total",
			Help:      "Total PII entities masked, by entity type",
		}, []string{"type"}),

		EventPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total client notification events published",
		}, []string{"event_type"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total client notification publish errors",
		}, []string{"event_type"}),
		EventPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Client notification publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"event_type"}),
	}
}

// RecordSessionStart records a new session being registered.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session leaving the registry.
func (m *Metrics) RecordSessionEnd(success bool, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if success {
		m.SessionsSuccess.Inc()
	} else {
		m.SessionsFailed.Inc()
	}
}

// RecordFallbackRetry records a bounded fallback reconnect attempt.
func (m *Metrics) RecordFallbackRetry() {
	m.FallbackRetries.Inc()
}

// RecordAudioAccepted records one accepted chunk.
func (m *Metrics) RecordAudioAccepted(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.ChunksReceived.Inc()
}

// RecordChunkDropped records a dropped chunk by reason.
func (m *Metrics) RecordChunkDropped(reason string) {
	m.ChunksDropped.WithLabelValues(reason).Inc()
}

// RecordBufferEviction records an eviction from the pre-connect queue.
func (m *Metrics) RecordBufferEviction() {
	m.BufferEvictions.Inc()
}

// RecordBackpressureWait records entering a bounded drain wait.
func (m *Metrics) RecordBackpressureWait() {
	m.BackpressureWaits.Inc()
}

// RecordBackpressureTimeout records a drain wait exceeding the bound.
func (m *Metrics) RecordBackpressureTimeout() {
	m.BackpressureTimeouts.Inc()
}

// RecordPartialTranscript records a partial result.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final segment.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordPersistError records a storage append failure.
func (m *Metrics) RecordPersistError() {
	m.PersistErrors.Inc()
}

// RecordPiiMasked records masked entity counts from one pass.
func (m *Metrics) RecordPiiMasked(countsByType map[string]int) {
	for t, n := range countsByType {
		m.PiiEntitiesMasked.WithLabelValues(t).Add(float64(n))
	}
}

// RecordEventPublish records a client notification publish attempt.
func (m *Metrics) RecordEventPublish(eventType string, err error, latencySeconds float64) {
	m.EventPublishTotal.WithLabelValues(eventType).Inc()
	m.EventPublishLatency.WithLabelValues(eventType).Observe(latencySeconds)
	if err != nil {
		m.EventPublishErrors.WithLabelValues(eventType).Inc()
	}
}
