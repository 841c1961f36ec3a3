package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ragsearch"

// Search modes, used as the "mode" label.
const (
	ModeText   = "text"
	ModeVector = "vector"
	ModeHybrid = "hybrid"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of searches",
		},
		[]string{"mode", "status"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	legDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "leg_duration_seconds",
			Help:      "Duration of the text and vector legs of a search",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"leg"},
	)

	resultsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"mode"},
	)

	degradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Hybrid searches answered text-only after a vector failure",
		},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
