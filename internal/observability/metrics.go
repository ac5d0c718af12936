package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_http_requests_total",
			Help: "Total number of HTTP requests by route pattern.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"status"},
	)
	turnStageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_turn_stage_failures_total",
			Help: "Total number of aborted turns by pipeline stage.",
		},
		[]string{"stage"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_llm_request_duration_seconds",
			Help:    "LLM generation latency by prompt purpose.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"purpose", "status"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_query_duration_seconds",
			Help:    "Warehouse query latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)
	schemaTableFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querychat_schema_table_failures_total",
			Help: "Total number of per-table schema fetch failures while building snapshots.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querychat_active_sessions",
			Help: "Number of chat sessions currently held in memory.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		turnsTotal,
		turnStageFailuresTotal,
		llmRequestDurationSeconds,
		queryDurationSeconds,
		schemaTableFailuresTotal,
		activeSessions,
	)
}

func ObserveTurn(failedStage string) {
	if failedStage == "" {
		turnsTotal.WithLabelValues("ok").Inc()
		return
	}
	turnsTotal.WithLabelValues("failed").Inc()
	turnStageFailuresTotal.WithLabelValues(failedStage).Inc()
}

func ObserveLLMRequest(purpose string, elapsed time.Duration, err error) {
	llmRequestDurationSeconds.WithLabelValues(purpose, statusLabel(err)).Observe(elapsed.Seconds())
}

func ObserveQuery(elapsed time.Duration, err error) {
	queryDurationSeconds.WithLabelValues(statusLabel(err)).Observe(elapsed.Seconds())
}

func IncrementSchemaTableFailures(count int) {
	if count > 0 {
		schemaTableFailuresTotal.Add(float64(count))
	}
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
