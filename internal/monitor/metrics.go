package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quintal-io/responder/internal/pkg/metrics"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "monitor",
		Name:      "cycles_total",
		Help:      "Detection cycles by outcome.",
	}, []string{"outcome"})

	activeIncidents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "monitor",
		Name:      "active_incidents",
		Help:      "Incidents currently under response.",
	})

	cycleInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "monitor",
		Name:      "cycle_interval_seconds",
		Help:      "Current dynamic interval between detection cycles.",
	})
)

func recordCycle(outcome string) { cyclesTotal.WithLabelValues(outcome).Inc() }

func recordActive(n int) { activeIncidents.Set(float64(n)) }

func recordInterval(iv time.Duration) { cycleInterval.Set(iv.Seconds()) }
