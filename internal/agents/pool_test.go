package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintal-io/responder/internal/domain"
)

func testIncident(t domain.IncidentType, sev domain.Severity) *domain.Incident {
	return &domain.Incident{
		ID:       "inc-1",
		Type:     t,
		Severity: sev,
		Phase:    domain.PhaseAssessment,
		Status:   domain.StatusActive,
	}
}

func startPool(t *testing.T, roles ...*Role) *Pool {
	t.Helper()
	p := NewPool()
	for _, r := range roles {
		require.NoError(t, p.Add(r))
	}
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func TestKindRelevanceExhaustive(t *testing.T) {
	tests := []struct {
		kind     Kind
		incType  domain.IncidentType
		severity domain.Severity
		want     bool
	}{
		{KindThreatHunter, domain.TypeIntrusion, domain.SeverityLow, true},
		{KindThreatHunter, domain.TypeMalware, domain.SeverityCatastrophic, false},
		{KindForensics, domain.TypeMalware, domain.SeverityHigh, true},
		{KindForensics, domain.TypeMalware, domain.SeverityModerate, false},
		{KindInfra, domain.TypeDenialOfService, domain.SeverityLow, true},
		{KindInfra, domain.TypeAnomaly, domain.SeverityCritical, true},
		{KindInfra, domain.TypeAnomaly, domain.SeverityModerate, false},
		{KindComms, domain.TypeAnomaly, domain.SeverityLow, true},
		{KindMalware, domain.TypeMalware, domain.SeverityLow, true},
		{KindMalware, domain.TypeIntrusion, domain.SeverityCatastrophic, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+string(tt.incType), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Relevant(tt.incType, tt.severity))
		})
	}
}

func TestActivateCompleted(t *testing.T) {
	role := NewRole(RoleConfig{ID: "hunter", Kind: KindThreatHunter, SLA: time.Second})
	startPool(t, role)

	act := role.Activate(context.Background(), testIncident(domain.TypeIntrusion, domain.SeverityHigh))

	assert.Equal(t, OutcomeCompleted, act.Outcome)
	require.NotNil(t, act.Assessment)
	assert.NotEmpty(t, act.Assessment.ImmediateActions)
	assert.Equal(t, StateIdle, role.State())
	assert.Zero(t, role.Assignments())
}

func TestActivateSLABreachIsDegradedNotFatal(t *testing.T) {
	slow := AnalyzerFunc(func(ctx context.Context, inc *domain.Incident) (*Assessment, error) {
		time.Sleep(5 * time.Millisecond)
		return &Assessment{RiskAssessment: "slow but done"}, nil
	})
	role := NewRole(RoleConfig{ID: "slowpoke", Kind: KindForensics, SLA: time.Millisecond, Analyzer: slow})
	startPool(t, role)

	act := role.Activate(context.Background(), testIncident(domain.TypeMalware, domain.SeverityHigh))

	assert.Equal(t, OutcomeDegraded, act.Outcome)
	assert.Equal(t, ReasonLatencyViolation, act.Reason)
	assert.NoError(t, act.Err)
	require.NotNil(t, act.Assessment, "a degraded activation still carries its assessment")
	assert.Greater(t, act.Elapsed, time.Millisecond)
}

func TestActivateAnalyzerError(t *testing.T) {
	broken := AnalyzerFunc(func(ctx context.Context, inc *domain.Incident) (*Assessment, error) {
		return nil, errors.New("backend unavailable")
	})
	role := NewRole(RoleConfig{ID: "broken", Kind: KindInfra, SLA: time.Second, Analyzer: broken})
	startPool(t, role)

	act := role.Activate(context.Background(), testIncident(domain.TypeDenialOfService, domain.SeverityLow))

	assert.Equal(t, OutcomeFailed, act.Outcome)
	assert.Equal(t, ReasonAnalysisError, act.Reason)
	assert.Error(t, act.Err)
}

func TestActivateHardTimeout(t *testing.T) {
	stuck := AnalyzerFunc(func(ctx context.Context, inc *domain.Incident) (*Assessment, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	role := NewRole(RoleConfig{
		ID: "stuck", Kind: KindInfra, SLA: 5 * time.Millisecond,
		HardTimeoutFactor: 2, Analyzer: stuck,
	})
	startPool(t, role)

	act := role.Activate(context.Background(), testIncident(domain.TypeDenialOfService, domain.SeverityLow))

	assert.Equal(t, OutcomeFailed, act.Outcome)
	assert.Equal(t, ReasonAnalysisTimeout, act.Reason)
}

func TestSerializedActivationsFIFO(t *testing.T) {
	var mu sync.Mutex
	var concurrent, maxConcurrent int

	counting := AnalyzerFunc(func(ctx context.Context, inc *domain.Incident) (*Assessment, error) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		concurrent--
		mu.Unlock()
		return &Assessment{}, nil
	})

	role := NewRole(RoleConfig{
		ID: "serial", Kind: KindComms, SLA: time.Second,
		Overflow: OverflowQueue, QueueDepth: 8, Analyzer: counting,
	})
	startPool(t, role)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			act := role.Activate(context.Background(), testIncident(domain.TypeAnomaly, domain.SeverityLow))
			assert.Equal(t, OutcomeCompleted, act.Outcome)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxConcurrent, "a role may never run two analyses concurrently")
}

func TestOverflowReject(t *testing.T) {
	release := make(chan struct{})
	blocking := AnalyzerFunc(func(ctx context.Context, inc *domain.Incident) (*Assessment, error) {
		<-release
		return &Assessment{}, nil
	})
	role := NewRole(RoleConfig{
		ID: "busy", Kind: KindMalware, SLA: time.Second,
		Overflow: OverflowReject, Analyzer: blocking,
	})
	startPool(t, role)

	first := make(chan Activation, 1)
	go func() {
		first <- role.Activate(context.Background(), testIncident(domain.TypeMalware, domain.SeverityLow))
	}()

	// Wait for the owner to start the first analysis, then occupy the
	// single buffered slot with a second request.
	require.Eventually(t, func() bool {
		return role.State() == StateActivating
	}, time.Second, time.Millisecond)

	second := make(chan Activation, 1)
	go func() {
		second <- role.Activate(context.Background(), testIncident(domain.TypeMalware, domain.SeverityLow))
	}()
	require.Eventually(t, func() bool {
		return role.Assignments() == 2
	}, time.Second, time.Millisecond)

	// Slot taken, owner busy: a third request is refused immediately.
	third := role.Activate(context.Background(), testIncident(domain.TypeMalware, domain.SeverityLow))
	assert.Equal(t, OutcomeRejected, third.Outcome)
	assert.Equal(t, ReasonQueueFull, third.Reason)

	close(release)
	assert.Equal(t, OutcomeCompleted, (<-first).Outcome)
	assert.Equal(t, OutcomeCompleted, (<-second).Outcome)
}

func TestPoolRelevantSelection(t *testing.T) {
	pool := NewDefaultPool(PoolConfig{DefaultSLA: time.Second})

	roles := pool.Relevant(domain.TypeMalware, domain.SeverityCatastrophic)
	ids := make([]string, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID())
	}

	// forensics (severity>=high), infra (severity>=critical), comms
	// (always), malware (type match). No threat hunter for malware.
	assert.ElementsMatch(t, []string{"forensics", "infra", "comms", "malware"}, ids)
}

func TestPoolSLAOverrides(t *testing.T) {
	pool := NewDefaultPool(PoolConfig{
		DefaultSLA:   time.Second,
		SLAOverrides: map[string]time.Duration{"comms": 250 * time.Millisecond},
	})

	comms, ok := pool.Role("comms")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, comms.SLA())

	infra, ok := pool.Role("infra")
	require.True(t, ok)
	assert.Equal(t, time.Second, infra.SLA())
}

func TestPeerNotificationBestEffort(t *testing.T) {
	pool := NewDefaultPool(PoolConfig{DefaultSLA: time.Second})
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	malware, ok := pool.Role("malware")
	require.True(t, ok)
	comms, ok := pool.Role("comms")
	require.True(t, ok)

	act := malware.Activate(context.Background(), testIncident(domain.TypeMalware, domain.SeverityLow))
	require.Equal(t, OutcomeCompleted, act.Outcome)

	assert.Eventually(t, func() bool {
		return comms.PeerNotifications() >= 1
	}, time.Second, time.Millisecond)
}
