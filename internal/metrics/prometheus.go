package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session outcomes.
const (
	SessionStopped       = "stopped"
	SessionDropped       = "dropped"
	SessionFailedToStart = "failed_to_start"
)

// Reply outcomes.
const (
	ReplySent        = "sent"
	ReplySkipped     = "skipped"
	ReplyUndelivered = "undelivered"
)

// Evaluation outcomes.
const (
	EvaluationCompleted        = "completed"
	EvaluationFallback         = "fallback"
	EvaluationGenerationFailed = "generation_failed"
	EvaluationNotFound         = "not_found"
	EvaluationStoreFailed      = "store_failed"
)

// Manager owns the collectors. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace    string
	replyBuckets []float64
	registry     *prometheus.Registry

	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	utterances     prometheus.Counter
	replies        *prometheus.CounterVec
	replySeconds   prometheus.Histogram
	evaluations    *prometheus.CounterVec
	calls          *prometheus.CounterVec
}

// NewManager registers all collectors on a fresh registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:    "recuria",
		replyBuckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "screening",
		Name:      "sessions_active",
		Help:      "Call sessions currently connected",
	})

	m.sessionsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "screening",
		Name:      "sessions_total",
		Help:      "Finished call sessions by outcome",
	}, []string{"outcome"})

	m.utterances = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "screening",
		Name:      "utterances_total",
		Help:      "Candidate utterances assembled from transcription results",
	})

	m.replies = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "screening",
		Name:      "replies_total",
		Help:      "Agent replies by outcome",
	}, []string{"outcome"})

	m.replySeconds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "screening",
		Name:      "reply_seconds",
		Help:      "Time from utterance to reply sent",
		Buckets:   m.replyBuckets,
	})

	m.evaluations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "evaluation_total",
		Help:      "Post-call evaluations by outcome",
	}, []string{"outcome"})

	m.calls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "screening",
		Name:      "calls_placed_total",
		Help:      "Outbound screening calls by result",
	}, []string{"result"})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionFinished decrements the active gauge and counts the outcome.
func (m *Manager) SessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsTotal.WithLabelValues(outcome).Inc()
}

// SessionFailedToStart counts a session that never reached streaming.
func (m *Manager) SessionFailedToStart() {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(SessionFailedToStart).Inc()
}

func (m *Manager) Utterance() {
	if m == nil {
		return
	}
	m.utterances.Inc()
}

// Reply counts a reply outcome; latency is observed for sent replies only.
func (m *Manager) Reply(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(outcome).Inc()
	if outcome == ReplySent {
		m.replySeconds.Observe(latency.Seconds())
	}
}

func (m *Manager) Evaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

// CallPlaced counts an outbound call attempt.
func (m *Manager) CallPlaced(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.calls.WithLabelValues(result).Inc()
}
