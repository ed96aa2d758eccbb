package procedure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintal-io/responder/internal/domain"
)

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		proc *Procedure
	}{
		{"missing name", &Procedure{Steps: []Step{{Name: "a", TimeLimit: time.Minute}}}},
		{"no steps", &Procedure{Name: "empty"}},
		{"zero time limit", &Procedure{Name: "bad-step", Steps: []Step{{Name: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.Register(tt.proc))
		})
	}
}

func TestLookupPrefersMostSpecific(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Seed(r))

	// Critical malware should match the critical plan, not the standard one.
	p := r.Lookup(domain.TypeMalware, domain.SeverityCatastrophic)
	assert.Equal(t, "malware-critical", p.Name)

	p = r.Lookup(domain.TypeMalware, domain.SeverityModerate)
	assert.Equal(t, "malware-standard", p.Name)
}

func TestLookupWildcardBeatenByExactType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Procedure{
		Name:        "catch-all",
		MinSeverity: domain.SeverityLow,
		Steps:       []Step{{Name: "triage", TimeLimit: time.Minute}},
	}))
	require.NoError(t, r.Register(&Procedure{
		Name:        "intrusion-plan",
		Type:        domain.TypeIntrusion,
		MinSeverity: domain.SeverityLow,
		Steps:       []Step{{Name: "triage", TimeLimit: time.Minute}},
	}))

	assert.Equal(t, "intrusion-plan", r.Lookup(domain.TypeIntrusion, domain.SeverityHigh).Name)
	assert.Equal(t, "catch-all", r.Lookup(domain.TypeAnomaly, domain.SeverityHigh).Name)
}

func TestLookupNeverFails(t *testing.T) {
	r := NewRegistry()

	// Empty registry and an unseen type both synthesize a plan.
	for _, sev := range []domain.Severity{
		domain.SeverityLow,
		domain.SeverityHigh,
		domain.SeverityCatastrophic,
	} {
		p := r.Lookup(domain.IncidentType("never-registered"), sev)
		require.NotNil(t, p, "severity %s", sev)
		require.NotEmpty(t, p.Steps)
		for _, s := range p.Steps {
			assert.Positive(t, s.TimeLimit)
		}
	}
}

func TestAdaptiveDefaultScalesWithSeverity(t *testing.T) {
	low := adaptiveDefault(domain.TypeAnomaly, domain.SeverityLow)
	catastrophic := adaptiveDefault(domain.TypeAnomaly, domain.SeverityCatastrophic)

	assert.Greater(t, len(catastrophic.Steps), len(low.Steps))
	assert.Less(t, catastrophic.Steps[0].TimeLimit, low.Steps[0].TimeLimit)
	assert.Contains(t, catastrophic.Resources, "incident-commander")
}

func TestDefaultEscalationCriteria(t *testing.T) {
	crit := DefaultEscalationCriteria()
	require.Len(t, crit, 1)

	assert.False(t, crit[0].Match(State{StepsDone: 1, Overruns: 1}))
	assert.False(t, crit[0].Match(State{StepsDone: 4, Overruns: 2}))
	assert.True(t, crit[0].Match(State{StepsDone: 3, Overruns: 2}))
}
