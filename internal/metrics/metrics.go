// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

const namespace = "bills"

var (
	routeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Routed queries by plan type and result code.",
	}, []string{"type", "code"})

	routeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "duration_seconds",
		Help:      "End-to-end routing latency by plan type.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"type"})

	collaboratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "collaborator",
		Name:      "duration_seconds",
		Help:      "Latency of calls to the classifier, stores and generator.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"collaborator", "code"})

	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "bills_total",
		Help:      "Ingestion outcomes by status.",
	}, []string{"status"})

	indexJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "jobs_total",
		Help:      "Vector indexing jobs by outcome.",
	}, []string{"outcome"})

	indexQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "queue_depth",
		Help:      "Jobs waiting in the indexing queue.",
	})
)

// ObserveRoute records one routed query. An empty type means the plan never
// normalized.
func ObserveRoute(queryType string, start time.Time, err error) {
	if queryType == "" {
		queryType = "unknown"
	}
	routeTotal.WithLabelValues(queryType, codeLabel(err)).Inc()
	routeLatency.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

func ObserveCollaborator(name string, start time.Time, err error) {
	collaboratorLatency.WithLabelValues(name, codeLabel(err)).Observe(time.Since(start).Seconds())
}

func IncIngest(status string) {
	ingestTotal.WithLabelValues(status).Inc()
}

func IncIndexJob(outcome string) {
	indexJobsTotal.WithLabelValues(outcome).Inc()
}

func SetIndexQueueDepth(n int) {
	indexQueueDepth.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func codeLabel(err error) string {
	if err == nil {
		return "OK"
	}
	return common.CodeOf(err)
}
