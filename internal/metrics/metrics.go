package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "collab_matcher"

// Metrics implements the recorder interfaces of matching, cache and
// embedding on top of a Prometheus registry.
type Metrics struct {
	Registry *prometheus.Registry

	matchRuns       *prometheus.CounterVec
	matchDuration   *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	explanations    *prometheus.CounterVec
	persistFailures prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	profiles        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		matchRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_runs_total",
			Help:      "Matching invocations by the pipeline that produced the result",
		}, []string{"path"}),
		matchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Duration of a matching invocation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"path"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Switches to keyword matching by reason",
		}, []string{"reason"}),
		explanations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Explanation attempts by outcome",
		}, []string{"outcome"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Match rows that could not be written",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Query embedding cache lookups by result",
		}, []string{"result"}),
		profiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_embeddings_total",
			Help:      "Profile embeddings computed by the backfill, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) MatchRun(path string, d time.Duration) {
	m.matchRuns.WithLabelValues(path).Inc()
	m.matchDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) Fallback(reason string) {
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Explanation(outcome string) {
	m.explanations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PersistFailures(n int) {
	if n > 0 {
		m.persistFailures.Add(float64(n))
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ProfileEmbedded(outcome string) {
	m.profiles.WithLabelValues(outcome).Inc()
}
