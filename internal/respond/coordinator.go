// Package respond runs one incident's full response lifecycle: role
// activation, phased step execution, and effectiveness scoring.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quintal-io/responder/internal/agents"
	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/procedure"
)

// StepResult records one executed procedure step.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Overrun  bool          `json:"overrun"`
	Unbound  bool          `json:"unbound"`
	Err      error         `json:"-"`
}

// Result is the complete coordination outcome for one incident.
type Result struct {
	Incident            *domain.Incident               `json:"incident"`
	Procedure           string                         `json:"procedure"`
	Resources           []string                       `json:"resources"`
	Activations         []agents.Activation            `json:"activations"`
	CoordinationQuality float64                        `json:"coordination_quality"`
	Steps               []StepResult                   `json:"steps"`
	OverrunSteps        int                            `json:"overrun_steps"`
	Escalated           bool                           `json:"escalated"`
	Effectiveness       float64                        `json:"effectiveness"`
	PhaseDurations      map[domain.Phase]time.Duration `json:"phase_durations"`
	RoleResponse        map[string]time.Duration       `json:"role_response"`
	StartedAt           time.Time                      `json:"started_at"`
	FinishedAt          time.Time                      `json:"finished_at"`
}

// Coordinator consumes the registry and the agent pool to run incident
// lifecycles. It holds no per-incident state: each Initiate call owns
// its incident exclusively, so phase transitions within one incident
// are strictly sequential while different incidents proceed
// independently.
type Coordinator struct {
	registry *procedure.Registry
	pool     *agents.Pool
	steps    *StepRegistry
}

// New creates a coordinator.
func New(registry *procedure.Registry, pool *agents.Pool, steps *StepRegistry) *Coordinator {
	return &Coordinator{registry: registry, pool: pool, steps: steps}
}

// Initiate runs the full response lifecycle for the incident. The
// procedure lookup cannot miss (the registry falls back to an adaptive
// plan) and a degraded or failed role activation never aborts the
// incident; the only errors are invalid inputs.
func (c *Coordinator) Initiate(ctx context.Context, inc *domain.Incident) (*Result, error) {
	if inc == nil {
		return nil, errors.New("initiate: nil incident")
	}
	if inc.Status.IsTerminal() {
		return nil, fmt.Errorf("initiate: incident %s already terminal (%s)", inc.ID, inc.Status)
	}

	logger := slog.With("incident_id", inc.ID, "type", inc.Type, "severity", inc.Severity.String())

	proc := c.registry.Lookup(inc.Type, inc.Severity)
	logger.Info("response initiated", "procedure", proc.Name, "steps", len(proc.Steps))

	res := &Result{
		Incident:       inc,
		Procedure:      proc.Name,
		Resources:      proc.Resources,
		PhaseDurations: make(map[domain.Phase]time.Duration),
		RoleResponse:   make(map[string]time.Duration),
		StartedAt:      time.Now().UTC(),
	}

	phaseStart := res.StartedAt
	enterPhase := func(next domain.Phase) {
		now := time.Now().UTC()
		res.PhaseDurations[inc.Phase] += now.Sub(phaseStart)
		phaseStart = now
		inc.Advance(next)
		// Status trails the completed phase: past containment the
		// incident is contained, in recovery it is under observation.
		switch inc.Phase {
		case domain.PhaseEradication:
			inc.Status = domain.StatusContained
		case domain.PhaseRecovery:
			inc.Status = domain.StatusMonitoring
		}
	}

	enterPhase(domain.PhaseAssessment)

	res.Activations = c.activateRoles(ctx, inc)
	degraded := 0
	for _, act := range res.Activations {
		res.RoleResponse[act.Role] = act.Elapsed
		if act.Outcome != agents.OutcomeCompleted {
			degraded++
		}
	}
	res.CoordinationQuality = coordinationQuality(res.Activations)

	state := procedure.State{
		Incident:      *inc,
		StepsTotal:    len(proc.Steps),
		RolesDegraded: degraded,
	}

steps:
	for _, step := range proc.Steps {
		if ctx.Err() != nil {
			logger.Warn("coordination interrupted", "error", ctx.Err())
			break
		}

		sr := c.executeStep(ctx, inc, step)
		res.Steps = append(res.Steps, sr)
		if sr.Overrun {
			res.OverrunSteps++
			recordStepOverrun(step.Name)
		}

		state.Incident = *inc
		state.StepsDone = len(res.Steps)
		state.Overruns = res.OverrunSteps
		state.LastStep = step.Name
		state.LastOverrun = sr.Overrun

		for _, crit := range proc.EscalateWhen {
			if crit.Match(state) {
				logger.Warn("escalation criterion matched", "criterion", crit.Name, "step", step.Name)
				res.Escalated = true
				break steps
			}
		}

		c.advancePhases(inc, proc, state, enterPhase)
	}

	if res.Escalated {
		inc.Escalate()
	} else if ctx.Err() == nil {
		enterPhase(domain.PhaseLessonsLearned)
		now := time.Now().UTC()
		inc.Status = domain.StatusResolved
		inc.ResolvedAt = &now
	}

	res.FinishedAt = time.Now().UTC()
	res.PhaseDurations[inc.Phase] += res.FinishedAt.Sub(phaseStart)

	res.Effectiveness = effectiveness(res.OverrunSteps, len(proc.Steps), res.Escalated)
	recordCoordination(inc, res)

	logger.Info("response finished",
		"status", inc.Status,
		"phase", inc.Phase,
		"effectiveness", res.Effectiveness,
		"overrun_steps", res.OverrunSteps,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)
	return res, nil
}

// activateRoles concurrently activates every relevant role. Each
// child's outcome is collected independently; a slow or failed role
// degrades coordination quality but never aborts its siblings.
func (c *Coordinator) activateRoles(ctx context.Context, inc *domain.Incident) []agents.Activation {
	roles := c.pool.Relevant(inc.Type, inc.Severity)
	if len(roles) == 0 {
		return nil
	}

	activations := make([]agents.Activation, len(roles))
	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func(i int, role *agents.Role) {
			defer wg.Done()
			activations[i] = role.Activate(ctx, inc)
		}(i, role)
	}
	wg.Wait()
	return activations
}

// executeStep runs one step under its time limit. A step that misses
// its deadline is marked overrun and execution proceeds; a step with no
// registered executor completes immediately as unbound.
func (c *Coordinator) executeStep(ctx context.Context, inc *domain.Incident, step procedure.Step) StepResult {
	fn, ok := c.steps.Get(step.Name)
	if !ok {
		slog.Debug("no executor bound for step", "step", step.Name, "incident_id", inc.ID)
		return StepResult{Name: step.Name, Unbound: true}
	}

	sctx, cancel := context.WithTimeout(ctx, step.TimeLimit)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("step panicked: %v", r)
			}
		}()
		done <- fn(sctx, inc)
	}()

	select {
	case err := <-done:
		sr := StepResult{Name: step.Name, Duration: time.Since(start), Err: err}
		if err != nil {
			slog.Warn("step failed", "step", step.Name, "incident_id", inc.ID, "error", err)
		}
		return sr
	case <-sctx.Done():
		// The executor keeps running against a cancelled context; the
		// engine moves on.
		slog.Warn("step overran its time limit",
			"step", step.Name,
			"incident_id", inc.ID,
			"limit", step.TimeLimit,
		)
		return StepResult{Name: step.Name, Duration: time.Since(start), Overrun: true}
	}
}

// advancePhases applies success criteria repeatedly so a step may
// carry the incident through several phases at once.
func (c *Coordinator) advancePhases(inc *domain.Incident, proc *procedure.Procedure, state procedure.State, enterPhase func(domain.Phase)) {
	for {
		criteria, ok := proc.AdvanceWhen[inc.Phase]
		if !ok || len(criteria) == 0 {
			return
		}
		for _, crit := range criteria {
			if !crit.Match(state) {
				return
			}
		}
		next, ok := inc.Phase.Next()
		if !ok || next == domain.PhaseLessonsLearned {
			// Lessons learned is entered only at resolution.
			return
		}
		enterPhase(next)
		state.Incident = *inc
	}
}

func effectiveness(overruns, total int, escalated bool) float64 {
	score := 1.0
	if total > 0 {
		score -= 0.5 * float64(overruns) / float64(total)
	}
	if escalated {
		score -= 0.3
	}
	if score < 0 {
		score = 0
	}
	return score
}

// coordinationQuality scores the role fan-out: completed activations
// count fully, degraded half, failed and rejected not at all.
func coordinationQuality(activations []agents.Activation) float64 {
	if len(activations) == 0 {
		return 1
	}
	var score float64
	for _, act := range activations {
		switch act.Outcome {
		case agents.OutcomeCompleted:
			score += 1
		case agents.OutcomeDegraded:
			score += 0.5
		}
	}
	return score / float64(len(activations))
}
