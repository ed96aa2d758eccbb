package respond

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quintal-io/responder/internal/domain"
	pkgmetrics "github.com/quintal-io/responder/internal/pkg/metrics"
)

var (
	coordinationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "respond",
			Name:      "coordinations_total",
			Help:      "Completed coordination runs by incident type and final status",
		},
		[]string{"type", "status"},
	)

	stepOverrunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "respond",
			Name:      "step_overruns_total",
			Help:      "Procedure steps that missed their time limit",
		},
		[]string{"step"},
	)

	effectivenessHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "respond",
			Name:      "effectiveness",
			Help:      "Effectiveness score per coordination run",
			Buckets:   []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	coordinationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: pkgmetrics.Namespace,
			Subsystem: "respond",
			Name:      "duration_seconds",
			Help:      "Wall time of a coordination run",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)
)

func recordStepOverrun(step string) {
	stepOverrunsTotal.WithLabelValues(step).Inc()
}

func recordCoordination(inc *domain.Incident, res *Result) {
	coordinationsTotal.WithLabelValues(string(inc.Type), string(inc.Status)).Inc()
	effectivenessHist.Observe(res.Effectiveness)
	coordinationDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
}
