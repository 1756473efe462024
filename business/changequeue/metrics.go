package changequeue

import "github.com/prometheus/client_golang/prometheus"

var (
	ChangesEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changequeue_enqueued_total",
			Help: "Count of enqueue attempts by change kind and result.",
		},
		[]string{"kind", "result"},
	)

	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changequeue_claims_total",
			Help: "Count of claim polls by result.",
		},
		[]string{"result"},
	)

	ChangesFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changequeue_finished_total",
			Help: "Count of change transitions out of execution by outcome.",
		},
		[]string{"outcome"},
	)

	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "changequeue_exec_duration_seconds",
			Help:    "Platform call latency by result class.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(ChangesEnqueuedTotal, ClaimsTotal, ChangesFinishedTotal, ExecDuration)
}
