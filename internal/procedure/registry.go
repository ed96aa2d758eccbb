package procedure

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// Registry maps (incident type, severity floor) to response plans.
// Lookup never fails: when nothing matches it synthesizes an adaptive
// default, so a procedure-lookup miss is never surfaced to callers.
//
// The registry is constructed once at startup and passed by reference;
// there is no package-level instance.
type Registry struct {
	mu         sync.RWMutex
	procedures []*Procedure
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a procedure. Procedures are immutable once registered.
func (r *Registry) Register(p *Procedure) error {
	if p.Name == "" {
		return errors.New("register procedure: name is required")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("register procedure %q: at least one step is required", p.Name)
	}
	for _, s := range p.Steps {
		if s.TimeLimit <= 0 {
			return fmt.Errorf("register procedure %q: step %q needs a positive time limit", p.Name, s.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.procedures = append(r.procedures, p)
	return nil
}

// Lookup returns the most specific procedure matching the incident
// classification. An exact-type match with the highest severity floor
// at or below the incident's severity wins; otherwise the best
// wildcard; otherwise a synthesized adaptive default.
func (r *Registry) Lookup(t domain.IncidentType, sev domain.Severity) *Procedure {
	r.mu.RLock()
	var best *Procedure
	for _, p := range r.procedures {
		if !p.Matches(t, sev) {
			continue
		}
		if best == nil || p.Specificity() > best.Specificity() {
			best = p
		}
	}
	r.mu.RUnlock()

	if best != nil {
		return best
	}

	slog.Debug("no registered procedure, synthesizing adaptive default",
		"type", t,
		"severity", sev.String(),
	)
	return adaptiveDefault(t, sev)
}

// adaptiveDefault builds a generic plan scaled to severity: higher
// tiers get extra steps and tighter time limits.
func adaptiveDefault(t domain.IncidentType, sev domain.Severity) *Procedure {
	limit := func(base time.Duration) time.Duration {
		// Catastrophic runs on a quarter of the base budget.
		scaled := base / time.Duration(sev)
		if scaled < time.Second {
			scaled = time.Second
		}
		return scaled
	}

	steps := []Step{
		{Name: "triage", TimeLimit: limit(4 * time.Minute)},
		{Name: "contain", TimeLimit: limit(8 * time.Minute)},
	}
	if sev >= domain.SeverityHigh {
		steps = append(steps,
			Step{Name: "isolate-systems", TimeLimit: limit(8 * time.Minute)},
			Step{Name: "forensic-capture", TimeLimit: limit(12 * time.Minute)},
		)
	}
	steps = append(steps,
		Step{Name: "restore-service", TimeLimit: limit(12 * time.Minute)},
		Step{Name: "post-review", TimeLimit: limit(20 * time.Minute)},
	)

	resources := []string{"on-call-responder"}
	if sev >= domain.SeverityCritical {
		resources = append(resources, "incident-commander", "comms-bridge")
	}

	return &Procedure{
		Name:         fmt.Sprintf("adaptive-%s-%s", nameOrAny(t), sev),
		Type:         t,
		MinSeverity:  sev,
		Steps:        steps,
		Resources:    resources,
		EscalateWhen: DefaultEscalationCriteria(),
		AdvanceWhen:  DefaultAdvanceCriteria(len(steps)),
	}
}

func nameOrAny(t domain.IncidentType) string {
	if t == "" {
		return "any"
	}
	return string(t)
}

// DefaultEscalationCriteria escalates when more than half the executed
// steps have overrun their time limits.
func DefaultEscalationCriteria() []Criterion {
	return []Criterion{
		{
			Name: "majority-overrun",
			Match: func(s State) bool {
				return s.StepsDone > 1 && s.Overruns*2 > s.StepsDone
			},
		},
	}
}

// DefaultAdvanceCriteria advances phases at fixed fractions of plan
// progress: containment after the first step, eradication at half,
// recovery when all steps are done.
func DefaultAdvanceCriteria(totalSteps int) map[domain.Phase][]Criterion {
	return map[domain.Phase][]Criterion{
		domain.PhaseAssessment: {
			{Name: "first-step-done", Match: func(s State) bool { return s.StepsDone >= 1 }},
		},
		domain.PhaseContainment: {
			{Name: "half-plan-done", Match: func(s State) bool { return s.StepsDone*2 >= s.StepsTotal }},
		},
		domain.PhaseEradication: {
			{Name: "plan-nearly-done", Match: func(s State) bool { return s.StepsDone >= s.StepsTotal-1 }},
		},
		domain.PhaseRecovery: {
			{Name: "plan-done", Match: func(s State) bool { return s.StepsDone >= s.StepsTotal }},
		},
	}
}
