package monitor

import (
	"context"
	"time"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/pkg/ctxlog"
)

// Readiness levels, best to worst.
const (
	ReadinessOptimal  = "OPTIMAL"
	ReadinessHigh     = "HIGH"
	ReadinessModerate = "MODERATE"
	ReadinessLimited  = "LIMITED"
)

// Snapshot is the read-only dashboard document. All numeric fields
// survive a JSON round trip.
type Snapshot struct {
	Status               string            `json:"status"`
	GeneratedAt          time.Time         `json:"generated_at"`
	ActiveIncidents      int               `json:"active_incidents"`
	SeverityDistribution map[string]int    `json:"severity_distribution"`
	AvgResponseTime      float64           `json:"avg_response_time_seconds"`
	AvgEffectiveness     float64           `json:"avg_effectiveness"`
	Readiness            string            `json:"readiness"`
	ReadinessScore       float64           `json:"readiness_score"`
	RecentIncidents      []IncidentSummary `json:"recent_incidents"`
}

// IncidentSummary is the dashboard view of one incident.
type IncidentSummary struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Phase      string     `json:"phase"`
	Status     string     `json:"status"`
	DetectedAt time.Time  `json:"detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Subsystem health weights for the readiness score.
const (
	weightCoordination = 0.4
	weightAlerting     = 0.35
	weightLoad         = 0.25

	// loadCeiling is the active-incident count at which the load
	// subsystem is considered fully saturated.
	loadCeiling = 10
)

// Snapshot assembles the current dashboard document.
func (l *Loop) Snapshot(ctx context.Context) Snapshot {
	now := time.Now().UTC()

	l.mu.RLock()
	activeCount := len(l.active)
	distribution := make(map[string]int, len(l.active))
	for _, inc := range l.active {
		distribution[inc.Severity.String()]++
	}
	l.mu.RUnlock()

	status := "operational"
	if activeCount > 0 {
		status = "responding"
	}

	score := l.readinessScore(activeCount)

	snap := Snapshot{
		Status:               status,
		GeneratedAt:          now,
		ActiveIncidents:      activeCount,
		SeverityDistribution: distribution,
		AvgResponseTime:      l.window.Average(MetricResponseTime, 0),
		AvgEffectiveness:     l.window.Average(MetricEffectiveness, 1),
		Readiness:            readinessLevel(score),
		ReadinessScore:       score,
		RecentIncidents:      []IncidentSummary{},
	}

	recent, err := l.store.ListRecent(ctx, l.cfg.RecentIncidents)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to load recent incidents", "error", err)
		return snap
	}
	for _, inc := range recent {
		snap.RecentIncidents = append(snap.RecentIncidents, summarize(inc))
	}
	return snap
}

// readinessScore is a weighted average of subsystem health: response
// effectiveness, alert delivery success, and headroom under active
// load. Each term is in [0,1].
func (l *Loop) readinessScore(activeCount int) float64 {
	coordination := clamp01(l.window.Average(MetricEffectiveness, 1))
	alerting := clamp01(l.window.Average(MetricDeliverySuccess, 1))
	load := clamp01(1 - float64(activeCount)/loadCeiling)

	return weightCoordination*coordination + weightAlerting*alerting + weightLoad*load
}

func readinessLevel(score float64) string {
	switch {
	case score >= 0.9:
		return ReadinessOptimal
	case score >= 0.75:
		return ReadinessHigh
	case score >= 0.5:
		return ReadinessModerate
	default:
		return ReadinessLimited
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func summarize(inc *domain.Incident) IncidentSummary {
	return IncidentSummary{
		ID:         inc.ID,
		Type:       string(inc.Type),
		Severity:   inc.Severity.String(),
		Phase:      string(inc.Phase),
		Status:     string(inc.Status),
		DetectedAt: inc.DetectedAt,
		ResolvedAt: inc.ResolvedAt,
	}
}
