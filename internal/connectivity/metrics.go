package connectivity

import (
	"time"

	"github.com/aridosvaldez/aridos/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	onlineGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "connectivity",
			Name:      "online",
			Help:      "1 when the backend is reachable",
		},
	)

	pendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "connectivity",
			Name:      "pending_operations",
			Help:      "Operations waiting to be synced",
		},
	)

	syncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "connectivity",
			Name:      "sync_total",
			Help:      "Batch submissions by result",
		},
		[]string{"result"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "connectivity",
			Name:      "sync_duration_seconds",
			Help:      "Time to submit a batch",
			Buckets:   prometheus.DefBuckets,
		},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "connectivity",
			Name:      "operations_total",
			Help:      "Queued operations by outcome (queued, synced, dropped)",
		},
		[]string{"outcome"},
	)

	edgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "connectivity",
			Name:      "transitions_total",
			Help:      "Reachability transitions",
		},
		[]string{"to"},
	)
)

func recordOnline(online bool) {
	if online {
		onlineGauge.Set(1)
		return
	}
	onlineGauge.Set(0)
}

func recordSync(result string, d time.Duration) {
	syncTotal.WithLabelValues(result).Inc()
	syncDuration.Observe(d.Seconds())
}

func recordOperations(outcome string, n int) {
	operationsTotal.WithLabelValues(outcome).Add(float64(n))
}
