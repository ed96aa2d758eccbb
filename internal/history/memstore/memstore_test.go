package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history"
)

func incidentAt(id string, status domain.Status, detected time.Time) *domain.Incident {
	return &domain.Incident{
		ID:         id,
		Type:       domain.TypeMalware,
		Severity:   domain.SeverityHigh,
		DetectedAt: detected,
		Phase:      domain.PhaseDetection,
		Status:     status,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	inc := incidentAt("a", domain.StatusActive, time.Now())
	require.NoError(t, s.SaveIncident(ctx, inc))

	got, err := s.GetIncident(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, inc.ID, got.ID)
	assert.Equal(t, inc.Status, got.Status)

	_, err = s.GetIncident(ctx, "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestSaveStoresCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	inc := incidentAt("a", domain.StatusActive, time.Now())
	require.NoError(t, s.SaveIncident(ctx, inc))

	inc.Status = domain.StatusResolved

	got, err := s.GetIncident(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestListRecentOrderAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.SaveIncident(ctx, incidentAt("old", domain.StatusResolved, base.Add(-2*time.Hour))))
	require.NoError(t, s.SaveIncident(ctx, incidentAt("mid", domain.StatusActive, base.Add(-time.Hour))))
	require.NoError(t, s.SaveIncident(ctx, incidentAt("new", domain.StatusActive, base)))

	all, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	top, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, []string{"new", "mid"}, []string{top[0].ID, top[1].ID})
}

func TestListByStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.SaveIncident(ctx, incidentAt("a", domain.StatusActive, base.Add(-time.Hour))))
	require.NoError(t, s.SaveIncident(ctx, incidentAt("b", domain.StatusResolved, base.Add(-30*time.Minute))))
	require.NoError(t, s.SaveIncident(ctx, incidentAt("c", domain.StatusActive, base)))

	active, err := s.ListByStatus(ctx, domain.StatusActive, 10)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "c", active[0].ID)
	assert.Equal(t, "a", active[1].ID)
}
