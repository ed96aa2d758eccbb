package detect

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quintal-io/responder/internal/domain"
	pkgmetrics "github.com/quintal-io/responder/internal/pkg/metrics"
)

var (
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "detect",
			Name:      "probes_total",
			Help:      "Probe runs by outcome",
		},
		[]string{"probe", "outcome"},
	)

	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "detect",
			Name:      "detections_total",
			Help:      "Accepted incident detections by type",
		},
		[]string{"type"},
	)

	cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "detect",
			Name:      "cycle_duration_seconds",
			Help:      "Detection cycle duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"detected"},
	)
)

func recordProbe(probe, outcome string) {
	probesTotal.WithLabelValues(probe, outcome).Inc()
}

func recordDetection(t domain.IncidentType) {
	detectionsTotal.WithLabelValues(string(t)).Inc()
}

func observeDetectCycle(d time.Duration, detected bool) {
	label := "no"
	if detected {
		label = "yes"
	}
	cycleDuration.WithLabelValues(label).Observe(d.Seconds())
}
