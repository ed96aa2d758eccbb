package agents

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgmetrics "github.com/quintal-io/responder/internal/pkg/metrics"
)

var (
	activationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "agents",
			Name:      "activations_total",
			Help:      "Role activations by outcome",
		},
		[]string{"role", "outcome"},
	)

	activationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "agents",
			Name:      "activation_duration_seconds",
			Help:      "Time from analysis start to completion",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"role"},
	)
)

func recordActivation(role string, outcome Outcome) {
	activationsTotal.WithLabelValues(role, string(outcome)).Inc()
}

func observeActivation(role string, d time.Duration) {
	activationDuration.WithLabelValues(role).Observe(d.Seconds())
}
