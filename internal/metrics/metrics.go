// Package metrics defines the Prometheus collectors exported by the daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "helpdesk"

// Chat request outcomes.
const (
	OutcomeStreamed    = "streamed"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// Reply finalization reasons.
const (
	FinalizeCompleted = "completed"
	FinalizeCancelled = "cancelled"
	FinalizeError     = "error"
)

// Index run results.
const (
	IndexSuccess = "success"
	IndexFailure = "failure"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChatRequests      *prometheus.CounterVec
	ReplyFinalized    *prometheus.CounterVec
	ReplyCharacters   prometheus.Histogram
	IndexRuns         *prometheus.CounterVec
	IndexedDocuments  prometheus.Gauge
	RetrievalDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		ReplyFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_finalized_total",
			Help:      "Assistant replies finalized, by reason.",
		}, []string{"reason"}),
		ReplyCharacters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_reply_characters",
			Help:      "Length of persisted assistant replies.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		}),
		IndexRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_index_runs_total",
			Help:      "Knowledge re-index runs by result.",
		}, []string{"result"}),
		IndexedDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_indexed_documents",
			Help:      "Documents currently held in the shared vector index.",
		}),
		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent retrieving knowledge context for one chat request.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ChatRequests,
			m.ReplyFinalized,
			m.ReplyCharacters,
			m.IndexRuns,
			m.IndexedDocuments,
			m.RetrievalDuration,
		)
	}
	return m
}

func (m *Metrics) ChatRequest(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReplyFinalizedWith(reason string, characters int) {
	if m == nil {
		return
	}
	m.ReplyFinalized.WithLabelValues(reason).Inc()
	if characters > 0 {
		m.ReplyCharacters.Observe(float64(characters))
	}
}

func (m *Metrics) IndexRun(result string, documents int) {
	if m == nil {
		return
	}
	m.IndexRuns.WithLabelValues(result).Inc()
	if result == IndexSuccess {
		m.IndexedDocuments.Set(float64(documents))
	}
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(d.Seconds())
}
