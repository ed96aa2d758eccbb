// Package domain contains the shared incident-response vocabulary used
// across the engine: incidents, severities, phases, and alerts.
package domain

import "time"

// Severity is an ordinal severity tier. Higher is worse.
type Severity int

// Severity tiers.
const (
	SeverityLow Severity = iota + 1
	SeverityModerate
	SeverityHigh
	SeverityCritical
	SeverityCatastrophic
)

// String returns the lowercase tier name used in logs and metric labels.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityModerate:
		return "moderate"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	case SeverityCatastrophic:
		return "catastrophic"
	}
	return "unknown"
}

// IsValid checks if the severity is within the ordinal range.
func (s Severity) IsValid() bool {
	return s >= SeverityLow && s <= SeverityCatastrophic
}

// IncidentType classifies what kind of event was detected.
type IncidentType string

// Well-known incident types. Probes may emit others; the registry
// falls back to an adaptive procedure for types it has never seen.
const (
	TypeIntrusion        IncidentType = "intrusion"
	TypeMalware          IncidentType = "malware"
	TypeDataExfiltration IncidentType = "data_exfiltration"
	TypeDenialOfService  IncidentType = "denial_of_service"
	TypeAnomaly          IncidentType = "anomaly"
)

// Phase is a stage in the incident response lifecycle.
type Phase string

// Lifecycle phases, in order.
const (
	PhaseDetection      Phase = "detection"
	PhaseAssessment     Phase = "assessment"
	PhaseContainment    Phase = "containment"
	PhaseEradication    Phase = "eradication"
	PhaseRecovery       Phase = "recovery"
	PhaseLessonsLearned Phase = "lessons_learned"
)

var phaseOrder = []Phase{
	PhaseDetection,
	PhaseAssessment,
	PhaseContainment,
	PhaseEradication,
	PhaseRecovery,
	PhaseLessonsLearned,
}

// Index returns the ordinal position of the phase, or -1 if unknown.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Next returns the following phase. ok is false when p is the final
// phase or unknown.
func (p Phase) Next() (next Phase, ok bool) {
	i := p.Index()
	if i < 0 || i == len(phaseOrder)-1 {
		return p, false
	}
	return phaseOrder[i+1], true
}

// CanAdvanceTo reports whether moving from p to target is a forward
// transition. The one permitted backward move is the escalation jump to
// assessment, which callers perform explicitly via Incident.Escalate.
func (p Phase) CanAdvanceTo(target Phase) bool {
	pi, ti := p.Index(), target.Index()
	return pi >= 0 && ti > pi
}

// Status is the operational state of an incident.
type Status string

// Incident statuses.
const (
	StatusActive     Status = "active"
	StatusContained  Status = "contained"
	StatusResolved   Status = "resolved"
	StatusEscalated  Status = "escalated"
	StatusMonitoring Status = "monitoring"
)

// IsTerminal reports whether the engine is done with the incident.
// Escalated incidents stay terminal until an external override, which
// is outside the engine's surface.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusEscalated
}

// Incident is a detected event tracked through the response lifecycle.
// It is owned by exactly one coordinator run until its status becomes
// terminal; the coordinator is the only writer of Phase and Status.
type Incident struct {
	ID              string       `json:"id"`
	Type            IncidentType `json:"type"`
	Severity        Severity     `json:"severity"`
	Description     string       `json:"description"`
	AffectedSystems []string     `json:"affected_systems"`
	DetectedAt      time.Time    `json:"detected_at"`
	Phase           Phase        `json:"phase"`
	Status          Status       `json:"status"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
}

// Advance moves the incident forward to target. It is a no-op for
// backward or unknown targets.
func (i *Incident) Advance(target Phase) bool {
	if !i.Phase.CanAdvanceTo(target) {
		return false
	}
	i.Phase = target
	return true
}

// Escalate marks the incident escalated and performs the one permitted
// backward phase jump to assessment.
func (i *Incident) Escalate() {
	i.Phase = PhaseAssessment
	i.Status = StatusEscalated
}

// Candidate is a probe's classified detection candidate. Confidence is
// in [0,1]; the detector discards candidates below its acceptance
// threshold.
type Candidate struct {
	Type            IncidentType
	Severity        Severity
	Confidence      float64
	Description     string
	AffectedSystems []string
}
