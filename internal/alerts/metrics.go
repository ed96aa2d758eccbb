package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/pkg/metrics"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerts",
		Name:      "deliveries_total",
		Help:      "Per-channel delivery attempts by outcome.",
	}, []string{"channel", "outcome"})

	distributionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerts",
		Name:      "distribution_latency_seconds",
		Help:      "Wall time of a full alert fan-out.",
		Buckets:   prometheus.DefBuckets,
	})

	acksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerts",
		Name:      "acknowledgments_total",
		Help:      "Alerts acknowledged before the escalation timer fired.",
	})

	escalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerts",
		Name:      "escalations_total",
		Help:      "Alerts re-broadcast to the next tier after a missed acknowledgment.",
	})
)

func recordDelivery(ch domain.ChannelType, outcome string) {
	deliveriesTotal.WithLabelValues(string(ch), outcome).Inc()
}

func recordDistribution(_ *domain.Alert, res Result) {
	distributionLatency.Observe(res.Latency.Seconds())
}

func recordAck() { acksTotal.Inc() }

func recordEscalation() { escalationsTotal.Inc() }
