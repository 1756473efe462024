package bandit

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BanditObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_observations_total",
			Help: "Count of metric batches folded into arms by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	BanditAllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_allocations_total",
			Help: "Count of parent group allocations by mode.",
		},
		[]string{"mode"},
	)

	BanditKillDecisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bandit_kill_decisions_total",
			Help: "Count of positive kill decisions.",
		},
	)
)

func init() {
	prometheus.MustRegister(BanditObservationsTotal, BanditAllocationsTotal, BanditKillDecisionsTotal)
}
