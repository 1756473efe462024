package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Latency of API handlers by route and status
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "budget_pilot_http_request_duration_seconds",
		Help:    "Latency of admin and ingestion API handlers",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// Metric batches and revenue events accepted by the ingestion API
	IngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_pilot_ingested_total",
		Help: "Total metric batches and revenue events accepted",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestDuration,
		IngestedTotal,
	)
}
