package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters of one actorflow run. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Queries            *prometheus.CounterVec
	QueryFailures      *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	CacheWriteFailures prometheus.Counter
	EdgesClassified    *prometheus.CounterVec
	EdgesProcessed     *prometheus.CounterVec
}

// NewMetrics registers the actorflow counters on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorflow",
			Name:      "graph_queries_total",
			Help:      "Graph queries issued, by query name.",
		}, []string{"query"}),
		QueryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorflow",
			Name:      "graph_query_failures_total",
			Help:      "Graph queries that returned an error, by query name.",
		}, []string{"query"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorflow",
			Name:      "instance_cache_lookups_total",
			Help:      "Edge instance cache lookups, by result (hit or miss).",
		}, []string{"result"}),
		CacheWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "actorflow",
			Name:      "instance_cache_write_failures_total",
			Help:      "Edge instance tables that could not be persisted.",
		}),
		EdgesClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorflow",
			Name:      "edges_classified_total",
			Help:      "Directly-follows edges labeled, by actor behavior.",
		}, []string{"actor_behavior"}),
		EdgesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorflow",
			Name:      "report_edges_total",
			Help:      "Report edges processed, by outcome (ok or skipped).",
		}, []string{"outcome"}),
	}
}

// Registry returns the registry the counters live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveQuery counts one graph query and, when err is non-nil, its failure.
func (m *Metrics) ObserveQuery(name string, err error) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(name).Inc()
	if err != nil {
		m.QueryFailures.WithLabelValues(name).Inc()
	}
}

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

// CacheWriteFailed counts a failed cache write.
func (m *Metrics) CacheWriteFailed() {
	if m != nil {
		m.CacheWriteFailures.Inc()
	}
}

// Classified adds n labeled edges for label.
func (m *Metrics) Classified(label string, n int64) {
	if m != nil && n > 0 {
		m.EdgesClassified.WithLabelValues(label).Add(float64(n))
	}
}

// EdgeProcessed counts one report edge with the given outcome.
func (m *Metrics) EdgeProcessed(outcome string) {
	if m != nil {
		m.EdgesProcessed.WithLabelValues(outcome).Inc()
	}
}

// WriteTextfile writes every counter to path in the Prometheus text
// exposition format, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
