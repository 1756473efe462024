package patterns

import "github.com/prometheus/client_golang/prometheus"

var (
	PatternEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pattern_entries_added_total",
		Help: "Count of entries added to the pattern index.",
	})

	PatternQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_queries_total",
			Help: "Count of similarity queries by cache result.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(PatternEntriesTotal, PatternQueriesTotal)
}
