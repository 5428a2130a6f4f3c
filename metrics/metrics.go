// Package metrics records sandbox, store and search activity as Prometheus
// metrics. A Metrics value satisfies the observer interfaces of those
// packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/search"
)

const metricsNamespace = "quire"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	SandboxRuns     *prometheus.CounterVec
	SandboxDuration *prometheus.HistogramVec
	Writes          *prometheus.CounterVec
	WriteDuration   *prometheus.HistogramVec
	Searches        *prometheus.CounterVec
	SearchHits      *prometheus.HistogramVec
	SearchDuration  *prometheus.HistogramVec
}

var (
	_ sandbox.Observer     = (*Metrics)(nil)
	_ persistence.Recorder = (*Metrics)(nil)
	_ search.Observer      = (*Metrics)(nil)
)

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SandboxRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Sandbox runs by outcome",
		}, []string{"outcome"}),
		SandboxDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sandbox",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock time of a sandbox run",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 1},
		}, []string{"outcome"}),
		Writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Store mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		WriteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "write_duration_seconds",
			Help:      "Time to complete a store mutation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries by index",
		}, []string{"index"}),
		SearchHits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "hits",
			Help:      "Hits returned per query",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"index"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "query_duration_seconds",
			Help:      "Time to answer a search query",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"index"}),
	}
}

// ObserveRun implements sandbox.Observer.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.SandboxRuns.WithLabelValues(outcome).Inc()
	m.SandboxDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveWrite implements persistence.Recorder.
func (m *Metrics) ObserveWrite(operation, outcome string, elapsed time.Duration) {
	m.Writes.WithLabelValues(operation, outcome).Inc()
	m.WriteDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveSearch implements search.Observer.
func (m *Metrics) ObserveSearch(index string, hits int, elapsed time.Duration) {
	m.Searches.WithLabelValues(index).Inc()
	m.SearchHits.WithLabelValues(index).Observe(float64(hits))
	m.SearchDuration.WithLabelValues(index).Observe(elapsed.Seconds())
}
