package movements

import (
	"github.com/aridosvaldez/aridos/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "movements",
			Name:      "applied_total",
			Help:      "Movements applied from replayed batches by type",
		},
		[]string{"type"},
	)

	duplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "movements",
			Name:      "duplicates_total",
			Help:      "Replayed operations skipped because they were already applied",
		},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "movements",
			Name:      "batches_total",
			Help:      "Batches received by result",
		},
		[]string{"result"},
	)
)
