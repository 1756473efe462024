package decisionloop

import "github.com/prometheus/client_golang/prometheus"

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_loop_cycles_total",
			Help: "Decision loop cycles by result.",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decision_loop_cycle_duration_seconds",
			Help:    "Wall time of one decision loop cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_loop_decisions_total",
			Help: "Decisions taken by the loop, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, CycleDuration, DecisionsTotal)
}
