package notifications

import (
	"time"

	"github.com/aridosvaldez/aridos/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notifications raised by severity",
		},
		[]string{"severity"},
	)

	notificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "queue_depth",
			Help:      "Deliveries waiting for a worker",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Deliveries by sender and outcome",
		},
		[]string{"sender", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"sender"},
	)
)

func recordNotification(severity Severity) {
	notificationsTotal.WithLabelValues(string(severity)).Inc()
}

// recordNotificationSent records a delivery outcome.
func recordNotificationSent(sender, status string) {
	notificationsSent.WithLabelValues(sender, status).Inc()
}

// recordNotificationDuration records notification send duration.
func recordNotificationDuration(sender string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(sender).Observe(duration.Seconds())
}
