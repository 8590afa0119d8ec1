// Package observability provides logging and Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	DroppedTransfers  prometheus.Counter
	AggregateNodes    prometheus.Counter

	// Graph metrics
	GraphNodes   *prometheus.GaugeVec
	GraphLinks   *prometheus.GaugeVec
	CacheLookups *prometheus.CounterVec

	// Layout metrics
	LayoutTicks    prometheus.Counter
	LayoutSettles  prometheus.Counter
	LayoutErrors   *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	// Analysis backend metrics
	AnalysisCallLatency *prometheus.HistogramVec
	AnalysisCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFetch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_graph_lab"
	}

	return &Metrics{
		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline stage runs",
		}, []string{"stage", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		DroppedTransfers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dropped_transfers_total",
			Help:      "Transfers dropped because an endpoint has no node",
		}),
		AggregateNodes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "aggregate_nodes_total",
			Help:      "Aggregate bucket nodes produced by the reducer",
		}),

		// Graph metrics
		GraphNodes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Node count of the last built graph per token",
		}, []string{"token"}),
		GraphLinks: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "links",
			Help:      "Link count of the last built graph per token",
		}, []string{"token"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "cache_lookups_total",
			Help:      "Graph cache lookups by result",
		}, []string{"result"}),

		// Layout metrics
		LayoutTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "ticks_total",
			Help:      "Total number of simulation ticks",
		}),
		LayoutSettles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "settles_total",
			Help:      "Times a simulation settled",
		}),
		LayoutErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "errors_total",
			Help:      "Layout errors caught by the interaction controller",
		}, []string{"kind"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Connected websocket sessions",
		}),

		// Analysis backend metrics
		AnalysisCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "call_latency_seconds",
			Help:      "Latency of analysis backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		AnalysisCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "call_errors_total",
			Help:      "Failed analysis backend calls",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulFetch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last dataset fetched from the backend",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPipelineRun records one pipeline stage run.
func RecordPipelineRun(stage, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(stage, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordGraph updates the graph size gauges for a token.
func RecordGraph(token string, nodes, links, dropped, aggregates int) {
	DefaultMetrics.GraphNodes.WithLabelValues(token).Set(float64(nodes))
	DefaultMetrics.GraphLinks.WithLabelValues(token).Set(float64(links))
	DefaultMetrics.DroppedTransfers.Add(float64(dropped))
	DefaultMetrics.AggregateNodes.Add(float64(aggregates))
}

// RecordCacheLookup records a graph cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordLayoutTick increments the tick counter, and the settle counter when
// the tick settled the simulation.
func RecordLayoutTick(settled bool) {
	DefaultMetrics.LayoutTicks.Inc()
	if settled {
		DefaultMetrics.LayoutSettles.Inc()
	}
}

// RecordLayoutError records an error caught at the layout boundary.
func RecordLayoutError(kind string) {
	DefaultMetrics.LayoutErrors.WithLabelValues(kind).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	DefaultMetrics.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func SessionClosed() {
	DefaultMetrics.ActiveSessions.Dec()
}

// RecordAnalysisCall records analysis backend call metrics.
func RecordAnalysisCall(method string, seconds float64, err error) {
	DefaultMetrics.AnalysisCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.AnalysisCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordFetch marks a successful dataset fetch.
func RecordFetch(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulFetch.Set(float64(unixSeconds))
}
