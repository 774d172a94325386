// Package metrics exposes Prometheus instrumentation for the engine's
// external touch points and per-turn outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casera",
			Name:      "turns_total",
			Help:      "Total conversational turns handled",
		},
		[]string{"outcome"}, // "ok" / "error"
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "casera",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90},
		},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casera",
			Name:      "embedding_requests_total",
			Help:      "Total embedding requests",
		},
		[]string{"status"}, // "success" / "error"
	)

	VectorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casera",
			Name:      "vector_ops_total",
			Help:      "Total vector store operations",
		},
		[]string{"op", "status"}, // op: "upsert" / "query" / "delete" / "stats"
	)

	RecordSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casera",
			Name:      "record_searches_total",
			Help:      "Total structured record searches",
		},
		[]string{"collection", "status"},
	)

	CorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casera",
			Name:      "corrections_total",
			Help:      "User corrections recorded via the feedback flow",
		},
		[]string{"memorized"}, // "true" when the example reached semantic memory
	)
)

func init() {
	prometheus.MustRegister(TurnsTotal)
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(VectorOpsTotal)
	prometheus.MustRegister(RecordSearchesTotal)
	prometheus.MustRegister(CorrectionsTotal)
}
