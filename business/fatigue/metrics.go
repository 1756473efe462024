package fatigue

import "github.com/prometheus/client_golang/prometheus"

var (
	FatigueRulesTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fatigue_rules_triggered_total",
			Help: "Count of fatigue rule firings by rule.",
		},
		[]string{"rule"},
	)

	FatigueVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fatigue_verdicts_total",
			Help: "Count of fatigue evaluations by recommended remediation.",
		},
		[]string{"remediation"},
	)
)

func init() {
	prometheus.MustRegister(FatigueRulesTriggeredTotal, FatigueVerdictsTotal)
}
