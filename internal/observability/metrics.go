package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsql_statements_total",
			Help: "Total number of record statements processed by sport and outcome.",
		},
		[]string{"sport", "outcome"},
	)
	skippedStatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsql_skipped_statements_total",
			Help: "Total number of statements skipped before processing by reason.",
		},
		[]string{"reason"},
	)
	completionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsql_completion_calls_total",
			Help: "Total number of text-completion calls by stage and status.",
		},
		[]string{"stage", "status"},
	)
	completionLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordsql_completion_latency_seconds",
			Help:    "Text-completion call latency by stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"stage"},
	)
	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsql_fallbacks_total",
			Help: "Total number of deterministic fallbacks taken by stage.",
		},
		[]string{"stage"},
	)
	entityResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsql_entity_resolutions_total",
			Help: "Total number of entity resolutions by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordsql_query_duration_seconds",
			Help:    "Final query execution latency by sport.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sport"},
	)
)

func init() {
	prometheus.MustRegister(
		statementsTotal,
		skippedStatementsTotal,
		completionCallsTotal,
		completionLatencySeconds,
		fallbacksTotal,
		entityResolutionsTotal,
		queryDurationSeconds,
	)
}

func ObserveStatement(sport, outcome string) {
	statementsTotal.WithLabelValues(sport, outcome).Inc()
}

func ObserveSkippedStatement(reason string) {
	skippedStatementsTotal.WithLabelValues(reason).Inc()
}

func ObserveCompletion(stage string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	completionCallsTotal.WithLabelValues(stage, status).Inc()
	completionLatencySeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementFallback(stage string) {
	fallbacksTotal.WithLabelValues(stage).Inc()
}

func ObserveEntityResolution(kind, outcome string) {
	entityResolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveQuery(sport string, elapsed time.Duration) {
	queryDurationSeconds.WithLabelValues(sport).Observe(elapsed.Seconds())
}
