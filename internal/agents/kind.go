// Package agents provides the pool of long-lived specialized responder
// roles activated during incident coordination.
package agents

import (
	"context"
	"fmt"

	"github.com/quintal-io/responder/internal/domain"
)

// Kind is a closed set of responder specializations. Each kind carries
// its own relevance predicate and default analysis, so dispatch is an
// exhaustive switch rather than a string lookup.
type Kind int

// Responder kinds.
const (
	KindThreatHunter Kind = iota
	KindForensics
	KindInfra
	KindComms
	KindMalware
)

// Kinds lists every responder kind.
func Kinds() []Kind {
	return []Kind{KindThreatHunter, KindForensics, KindInfra, KindComms, KindMalware}
}

// String returns the kind name used in config, logs, and metric labels.
func (k Kind) String() string {
	switch k {
	case KindThreatHunter:
		return "threat_hunter"
	case KindForensics:
		return "forensics"
	case KindInfra:
		return "infra"
	case KindComms:
		return "comms"
	case KindMalware:
		return "malware"
	}
	return "unknown"
}

// Relevant reports whether this kind responds to the given incident
// classification.
func (k Kind) Relevant(t domain.IncidentType, sev domain.Severity) bool {
	switch k {
	case KindThreatHunter:
		return t == domain.TypeIntrusion || t == domain.TypeDataExfiltration || t == domain.TypeAnomaly
	case KindForensics:
		return sev >= domain.SeverityHigh
	case KindInfra:
		return t == domain.TypeDenialOfService || sev >= domain.SeverityCritical
	case KindComms:
		// A communications liaison joins every incident.
		return true
	case KindMalware:
		return t == domain.TypeMalware
	}
	return false
}

// Assessment is a role's analysis output for one incident.
type Assessment struct {
	ImmediateActions     []string `json:"immediate_actions"`
	RiskAssessment       string   `json:"risk_assessment"`
	ResourceRequirements []string `json:"resource_requirements"`
}

// Analyzer produces an assessment for an incident. Production
// deployments plug in real integrations; every kind also ships a
// deterministic default.
type Analyzer interface {
	Analyze(ctx context.Context, inc *domain.Incident) (*Assessment, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, inc *domain.Incident) (*Assessment, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, inc *domain.Incident) (*Assessment, error) {
	return f(ctx, inc)
}

// defaultAnalyzer returns the built-in assessment for a kind.
func defaultAnalyzer(k Kind) Analyzer {
	return AnalyzerFunc(func(_ context.Context, inc *domain.Incident) (*Assessment, error) {
		risk := fmt.Sprintf("%s impact on %d system(s)", inc.Severity, len(inc.AffectedSystems))
		switch k {
		case KindThreatHunter:
			return &Assessment{
				ImmediateActions:     []string{"sweep for related indicators", "review lateral movement paths"},
				RiskAssessment:       risk,
				ResourceRequirements: []string{"query access to detection backend"},
			}, nil
		case KindForensics:
			return &Assessment{
				ImmediateActions:     []string{"capture volatile memory", "preserve disk images"},
				RiskAssessment:       risk,
				ResourceRequirements: []string{"forensics-workstation", "evidence storage"},
			}, nil
		case KindInfra:
			return &Assessment{
				ImmediateActions:     []string{"verify failover capacity", "prepare isolation change"},
				RiskAssessment:       risk,
				ResourceRequirements: []string{"change-window approval"},
			}, nil
		case KindComms:
			return &Assessment{
				ImmediateActions:     []string{"draft stakeholder notice", "open comms bridge"},
				RiskAssessment:       risk,
				ResourceRequirements: []string{"distribution lists"},
			}, nil
		case KindMalware:
			return &Assessment{
				ImmediateActions:     []string{"detonate sample in sandbox", "extract indicators"},
				RiskAssessment:       risk,
				ResourceRequirements: []string{"sandbox capacity"},
			}, nil
		}
		return nil, fmt.Errorf("unknown role kind %d", k)
	})
}
