// Package procedure defines response procedures and the registry that
// resolves one for every incident.
package procedure

import (
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// Step is a named unit of a response plan with a completion deadline.
// The step's business logic lives in an externally registered executor;
// the engine enforces only ordering and timing.
type Step struct {
	Name      string
	TimeLimit time.Duration
}

// State is the execution snapshot handed to criteria predicates after
// each step.
type State struct {
	Incident      domain.Incident
	StepsDone     int
	StepsTotal    int
	Overruns      int
	LastStep      string
	LastOverrun   bool
	RolesDegraded int
}

// Criterion is a named predicate over execution state. Escalation
// criteria abort the plan; success criteria advance the phase.
type Criterion struct {
	Name  string
	Match func(State) bool
}

// Procedure is an immutable response plan. It is looked up per
// incident and never mutated.
type Procedure struct {
	Name        string
	Type        domain.IncidentType // empty matches any type
	MinSeverity domain.Severity
	Steps       []Step
	Resources   []string
	// EscalateWhen is evaluated after every step; the first match
	// escalates the incident.
	EscalateWhen []Criterion
	// AdvanceWhen holds the success criteria for leaving each phase.
	// All criteria for the current phase must match.
	AdvanceWhen map[domain.Phase][]Criterion
}

// Matches reports whether this procedure applies to the given incident
// classification.
func (p *Procedure) Matches(t domain.IncidentType, sev domain.Severity) bool {
	if p.Type != "" && p.Type != t {
		return false
	}
	return sev >= p.MinSeverity
}

// Specificity orders candidate procedures: an exact type match beats a
// wildcard, then a higher severity floor beats a lower one.
func (p *Procedure) Specificity() int {
	s := int(p.MinSeverity)
	if p.Type != "" {
		s += 100
	}
	return s
}
