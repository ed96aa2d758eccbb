package respond

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintal-io/responder/internal/agents"
	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/procedure"
)

func newTestPool(t *testing.T, cfg agents.PoolConfig) *agents.Pool {
	t.Helper()
	if cfg.DefaultSLA == 0 {
		cfg.DefaultSLA = time.Second
	}
	pool := agents.NewDefaultPool(cfg)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func newIncident(id string, it domain.IncidentType, sev domain.Severity) *domain.Incident {
	return &domain.Incident{
		ID:         id,
		Type:       it,
		Severity:   sev,
		DetectedAt: time.Now().UTC(),
		Phase:      domain.PhaseDetection,
		Status:     domain.StatusActive,
	}
}

func quickProcedure(it domain.IncidentType, stepNames ...string) *procedure.Procedure {
	steps := make([]procedure.Step, len(stepNames))
	for i, n := range stepNames {
		steps[i] = procedure.Step{Name: n, TimeLimit: 500 * time.Millisecond}
	}
	return &procedure.Procedure{
		Name:         string(it) + "-test",
		Type:         it,
		MinSeverity:  domain.SeverityLow,
		Steps:        steps,
		EscalateWhen: procedure.DefaultEscalationCriteria(),
		AdvanceWhen:  procedure.DefaultAdvanceCriteria(len(steps)),
	}
}

func noopStep(ctx context.Context, inc *domain.Incident) error { return nil }

func TestInitiateResolvesIncident(t *testing.T) {
	reg := procedure.NewRegistry()
	require.NoError(t, reg.Register(quickProcedure(domain.TypeIntrusion, "triage", "isolate", "restore", "review")))

	steps := NewStepRegistry()
	for _, n := range []string{"triage", "isolate", "restore", "review"} {
		require.NoError(t, steps.Register(n, noopStep))
	}

	c := New(reg, newTestPool(t, agents.PoolConfig{}), steps)
	inc := newIncident("inc-resolve", domain.TypeIntrusion, domain.SeverityHigh)

	res, err := c.Initiate(context.Background(), inc)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusResolved, inc.Status)
	assert.Equal(t, domain.PhaseLessonsLearned, inc.Phase)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, "intrusion-test", res.Procedure)
	assert.Len(t, res.Steps, 4)
	assert.Zero(t, res.OverrunSteps)
	assert.InDelta(t, 1.0, res.Effectiveness, 1e-9)
	assert.False(t, res.Escalated)
	assert.NotEmpty(t, res.Activations)
	assert.NotEmpty(t, res.RoleResponse)
}

func TestStatusTracksPhaseProgress(t *testing.T) {
	reg := procedure.NewRegistry()
	names := []string{"triage", "isolate", "restore", "review"}
	require.NoError(t, reg.Register(quickProcedure(domain.TypeIntrusion, names...)))

	// Steps run sequentially on the coordinating goroutine, so each one
	// can safely record the status it executes under.
	steps := NewStepRegistry()
	seen := make([]domain.Status, 0, len(names))
	for _, n := range names {
		require.NoError(t, steps.Register(n, func(ctx context.Context, inc *domain.Incident) error {
			seen = append(seen, inc.Status)
			return nil
		}))
	}

	c := New(reg, newTestPool(t, agents.PoolConfig{}), steps)
	inc := newIncident("inc-status", domain.TypeIntrusion, domain.SeverityHigh)

	_, err := c.Initiate(context.Background(), inc)
	require.NoError(t, err)

	assert.Equal(t, []domain.Status{
		domain.StatusActive,     // assessment
		domain.StatusActive,     // containment in progress
		domain.StatusContained,  // eradication
		domain.StatusMonitoring, // recovery
	}, seen)
	assert.Equal(t, domain.StatusResolved, inc.Status)
}

func TestInitiateDegradedRoleStillCompletes(t *testing.T) {
	// A role with a 1ms SLA whose analysis takes ~5ms must surface as a
	// degraded activation without failing the coordination.
	pool := agents.NewPool()
	require.NoError(t, pool.Add(agents.NewRole(agents.RoleConfig{
		ID: "comms", Kind: agents.KindComms, SLA: time.Millisecond,
		Analyzer: agents.AnalyzerFunc(func(ctx context.Context, inc *domain.Incident) (*agents.Assessment, error) {
			time.Sleep(5 * time.Millisecond)
			return &agents.Assessment{RiskAssessment: "ok"}, nil
		}),
	})))
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	reg := procedure.NewRegistry()
	require.NoError(t, reg.Register(quickProcedure(domain.TypeAnomaly, "triage")))
	steps := NewStepRegistry()
	require.NoError(t, steps.Register("triage", noopStep))

	c := New(reg, pool, steps)
	inc := newIncident("inc-degraded", domain.TypeAnomaly, domain.SeverityModerate)

	res, err := c.Initiate(context.Background(), inc)
	require.NoError(t, err)

	require.Len(t, res.Activations, 1)
	assert.Equal(t, agents.OutcomeDegraded, res.Activations[0].Outcome)
	assert.Equal(t, agents.ReasonLatencyViolation, res.Activations[0].Reason)
	assert.Equal(t, domain.StatusResolved, inc.Status)
	assert.InDelta(t, 0.5, res.CoordinationQuality, 1e-9)
}

func TestInitiateStepOverrunProceeds(t *testing.T) {
	reg := procedure.NewRegistry()
	proc := &procedure.Procedure{
		Name:        "overrun-test",
		Type:        domain.TypeAnomaly,
		MinSeverity: domain.SeverityLow,
		Steps: []procedure.Step{
			{Name: "stall", TimeLimit: 10 * time.Millisecond},
			{Name: "finish", TimeLimit: 500 * time.Millisecond},
		},
		AdvanceWhen: procedure.DefaultAdvanceCriteria(2),
	}
	require.NoError(t, reg.Register(proc))

	steps := NewStepRegistry()
	require.NoError(t, steps.Register("stall", func(ctx context.Context, inc *domain.Incident) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	finished := false
	require.NoError(t, steps.Register("finish", func(ctx context.Context, inc *domain.Incident) error {
		finished = true
		return nil
	}))

	c := New(reg, newTestPool(t, agents.PoolConfig{}), steps)
	inc := newIncident("inc-overrun", domain.TypeAnomaly, domain.SeverityLow)

	res, err := c.Initiate(context.Background(), inc)
	require.NoError(t, err)

	assert.True(t, finished, "execution proceeds past an overrun step")
	assert.Equal(t, 1, res.OverrunSteps)
	assert.True(t, res.Steps[0].Overrun)
	// 1 - 0.5*(1/2) = 0.75
	assert.InDelta(t, 0.75, res.Effectiveness, 1e-9)
	assert.Equal(t, domain.StatusResolved, inc.Status)
}

func TestInitiateEscalation(t *testing.T) {
	reg := procedure.NewRegistry()
	proc := quickProcedure(domain.TypeMalware, "triage", "quarantine", "restore")
	proc.EscalateWhen = []procedure.Criterion{{
		Name:  "always-after-first",
		Match: func(s procedure.State) bool { return s.StepsDone >= 1 },
	}}
	require.NoError(t, reg.Register(proc))

	steps := NewStepRegistry()
	executed := 0
	for _, n := range []string{"triage", "quarantine", "restore"} {
		require.NoError(t, steps.Register(n, func(ctx context.Context, inc *domain.Incident) error {
			executed++
			return nil
		}))
	}

	c := New(reg, newTestPool(t, agents.PoolConfig{}), steps)
	inc := newIncident("inc-escalate", domain.TypeMalware, domain.SeverityCritical)

	res, err := c.Initiate(context.Background(), inc)
	require.NoError(t, err)

	assert.True(t, res.Escalated)
	assert.Equal(t, domain.StatusEscalated, inc.Status)
	assert.Equal(t, domain.PhaseAssessment, inc.Phase, "escalation jumps back to assessment")
	assert.Nil(t, inc.ResolvedAt)
	assert.Equal(t, 1, executed, "escalation stops the plan")
	// 1 - 0 - 0.3
	assert.InDelta(t, 0.7, res.Effectiveness, 1e-9)
}

func TestInitiateUnboundStep(t *testing.T) {
	reg := procedure.NewRegistry()
	require.NoError(t, reg.Register(quickProcedure(domain.TypeAnomaly, "nobody-home")))

	c := New(reg, newTestPool(t, agents.PoolConfig{}), NewStepRegistry())
	inc := newIncident("inc-unbound", domain.TypeAnomaly, domain.SeverityLow)

	res, err := c.Initiate(context.Background(), inc)
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Unbound)
	assert.False(t, res.Steps[0].Overrun)
	assert.Equal(t, domain.StatusResolved, inc.Status)
}

func TestInitiateStepPanicIsolated(t *testing.T) {
	reg := procedure.NewRegistry()
	require.NoError(t, reg.Register(quickProcedure(domain.TypeAnomaly, "boom", "after")))

	steps := NewStepRegistry()
	require.NoError(t, steps.Register("boom", func(ctx context.Context, inc *domain.Incident) error {
		panic("step exploded")
	}))
	reached := false
	require.NoError(t, steps.Register("after", func(ctx context.Context, inc *domain.Incident) error {
		reached = true
		return nil
	}))

	c := New(reg, newTestPool(t, agents.PoolConfig{}), steps)
	res, err := c.Initiate(context.Background(), newIncident("inc-panic", domain.TypeAnomaly, domain.SeverityLow))
	require.NoError(t, err)

	assert.True(t, reached)
	assert.Error(t, res.Steps[0].Err)
}

func TestInitiateRejectsTerminalIncident(t *testing.T) {
	c := New(procedure.NewRegistry(), newTestPool(t, agents.PoolConfig{}), NewStepRegistry())

	inc := newIncident("inc-done", domain.TypeAnomaly, domain.SeverityLow)
	inc.Status = domain.StatusResolved

	_, err := c.Initiate(context.Background(), inc)
	assert.Error(t, err)

	_, err = c.Initiate(context.Background(), nil)
	assert.Error(t, err)
}

func TestConcurrentIncidentsIndependentPhases(t *testing.T) {
	reg := procedure.NewRegistry()
	require.NoError(t, reg.Register(quickProcedure(domain.TypeMalware, "fast-step")))
	slowProc := &procedure.Procedure{
		Name:        "slow-plan",
		Type:        domain.TypeIntrusion,
		MinSeverity: domain.SeverityLow,
		Steps: []procedure.Step{
			{Name: "gate", TimeLimit: 5 * time.Second},
			{Name: "fast-step", TimeLimit: 500 * time.Millisecond},
		},
		AdvanceWhen: procedure.DefaultAdvanceCriteria(2),
	}
	require.NoError(t, reg.Register(slowProc))

	release := make(chan struct{})
	entered := make(chan struct{})
	steps := NewStepRegistry()
	require.NoError(t, steps.Register("gate", func(ctx context.Context, inc *domain.Incident) error {
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	require.NoError(t, steps.Register("fast-step", noopStep))

	c := New(reg, newTestPool(t, agents.PoolConfig{}), steps)

	slow := newIncident("inc-slow", domain.TypeIntrusion, domain.SeverityLow)
	fast := newIncident("inc-fast", domain.TypeMalware, domain.SeverityLow)

	slowDone := make(chan *Result, 1)
	go func() {
		res, err := c.Initiate(context.Background(), slow)
		assert.NoError(t, err)
		slowDone <- res
	}()
	<-entered

	// The fast incident runs to completion while the slow one is still
	// gated on its first step.
	_, err := c.Initiate(context.Background(), fast)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, fast.Status)
	assert.Equal(t, domain.StatusActive, slow.Status)
	assert.NotEqual(t, domain.PhaseLessonsLearned, slow.Phase)

	close(release)
	<-slowDone
	assert.Equal(t, domain.StatusResolved, slow.Status)
	assert.Equal(t, domain.PhaseLessonsLearned, slow.Phase)
}

func TestEffectivenessFormula(t *testing.T) {
	tests := []struct {
		name      string
		overruns  int
		total     int
		escalated bool
		want      float64
	}{
		{"clean", 0, 4, false, 1.0},
		{"half overrun", 2, 4, false, 0.75},
		{"all overrun", 4, 4, false, 0.5},
		{"escalated only", 0, 4, true, 0.7},
		{"worst case", 4, 4, true, 0.2},
		{"no steps", 0, 0, false, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, effectiveness(tt.overruns, tt.total, tt.escalated), 1e-9)
		})
	}
}

func TestCoordinationQuality(t *testing.T) {
	acts := []agents.Activation{
		{Outcome: agents.OutcomeCompleted},
		{Outcome: agents.OutcomeDegraded},
		{Outcome: agents.OutcomeFailed},
		{Outcome: agents.OutcomeCompleted},
	}
	assert.InDelta(t, 0.625, coordinationQuality(acts), 1e-9)
	assert.InDelta(t, 1.0, coordinationQuality(nil), 1e-9)
}
