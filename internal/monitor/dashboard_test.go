package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history/memstore"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	store := memstore.New()
	resolved := time.Now().UTC()
	require.NoError(t, store.SaveIncident(context.Background(), &domain.Incident{
		ID:         "inc-1",
		Type:       domain.TypeMalware,
		Severity:   domain.SeverityCritical,
		DetectedAt: resolved.Add(-time.Hour),
		Phase:      domain.PhaseLessonsLearned,
		Status:     domain.StatusResolved,
		ResolvedAt: &resolved,
	}))

	l := New(testConfig(), &fakeDetector{}, &fakeCoordinator{}, &fakeDistributor{}, store)
	l.register(detectedIncident("inc-2", domain.SeverityHigh))
	l.window.Record(MetricResponseTime, 1.2345678)
	l.window.Record(MetricEffectiveness, 0.87654321)
	l.window.Record(MetricDeliverySuccess, 0.75)

	snap := l.Snapshot(context.Background())

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, snap.Status, got.Status)
	assert.Equal(t, snap.ActiveIncidents, got.ActiveIncidents)
	assert.Equal(t, snap.SeverityDistribution, got.SeverityDistribution)
	assert.Equal(t, snap.Readiness, got.Readiness)
	assert.InDelta(t, snap.AvgResponseTime, got.AvgResponseTime, 1e-6)
	assert.InDelta(t, snap.AvgEffectiveness, got.AvgEffectiveness, 1e-6)
	assert.InDelta(t, snap.ReadinessScore, got.ReadinessScore, 1e-6)
	require.Len(t, got.RecentIncidents, 1)
	assert.Equal(t, "inc-1", got.RecentIncidents[0].ID)
}

func TestSnapshotStatusAndDistribution(t *testing.T) {
	l := New(testConfig(), &fakeDetector{}, &fakeCoordinator{}, &fakeDistributor{}, memstore.New())

	snap := l.Snapshot(context.Background())
	assert.Equal(t, "operational", snap.Status)
	assert.Zero(t, snap.ActiveIncidents)
	assert.Empty(t, snap.RecentIncidents)

	l.register(detectedIncident("a", domain.SeverityHigh))
	l.register(detectedIncident("b", domain.SeverityHigh))
	l.register(detectedIncident("c", domain.SeverityLow))

	snap = l.Snapshot(context.Background())
	assert.Equal(t, "responding", snap.Status)
	assert.Equal(t, 3, snap.ActiveIncidents)
	assert.Equal(t, map[string]int{"high": 2, "low": 1}, snap.SeverityDistribution)
}

func TestReadinessLevels(t *testing.T) {
	assert.Equal(t, ReadinessOptimal, readinessLevel(0.95))
	assert.Equal(t, ReadinessOptimal, readinessLevel(0.9))
	assert.Equal(t, ReadinessHigh, readinessLevel(0.8))
	assert.Equal(t, ReadinessModerate, readinessLevel(0.6))
	assert.Equal(t, ReadinessLimited, readinessLevel(0.2))
}

func TestReadinessScoreDegradesUnderLoad(t *testing.T) {
	l := New(testConfig(), &fakeDetector{}, &fakeCoordinator{}, &fakeDistributor{}, memstore.New())

	// Idle system with perfect defaults.
	assert.InDelta(t, 1.0, l.readinessScore(0), 1e-9)

	// Load eats into the load-weighted term only.
	assert.InDelta(t, 1.0-weightLoad*0.5, l.readinessScore(5), 1e-9)
	assert.InDelta(t, 1.0-weightLoad, l.readinessScore(10), 1e-9)
	assert.InDelta(t, 1.0-weightLoad, l.readinessScore(50), 1e-9)

	// Poor effectiveness drags the coordination term.
	l.window.Record(MetricEffectiveness, 0.5)
	score := l.readinessScore(0)
	assert.InDelta(t, weightCoordination*0.5+weightAlerting+weightLoad, score, 1e-9)
	assert.Equal(t, ReadinessHigh, readinessLevel(score))
}
