package procedure

import (
	"fmt"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// Seed registers the built-in procedure table. Operations tooling can
// register additional plans before the monitoring loop starts.
func Seed(r *Registry) error {
	builtins := []*Procedure{
		{
			Name:        "malware-standard",
			Type:        domain.TypeMalware,
			MinSeverity: domain.SeverityLow,
			Steps: []Step{
				{Name: "triage", TimeLimit: 5 * time.Minute},
				{Name: "quarantine-host", TimeLimit: 10 * time.Minute},
				{Name: "remove-artifacts", TimeLimit: 20 * time.Minute},
				{Name: "restore-service", TimeLimit: 15 * time.Minute},
				{Name: "post-review", TimeLimit: 30 * time.Minute},
			},
			Resources:    []string{"on-call-responder", "endpoint-tooling"},
			EscalateWhen: DefaultEscalationCriteria(),
			AdvanceWhen:  DefaultAdvanceCriteria(5),
		},
		{
			Name:        "malware-critical",
			Type:        domain.TypeMalware,
			MinSeverity: domain.SeverityCritical,
			Steps: []Step{
				{Name: "triage", TimeLimit: 2 * time.Minute},
				{Name: "isolate-segment", TimeLimit: 5 * time.Minute},
				{Name: "quarantine-host", TimeLimit: 5 * time.Minute},
				{Name: "forensic-capture", TimeLimit: 15 * time.Minute},
				{Name: "remove-artifacts", TimeLimit: 15 * time.Minute},
				{Name: "restore-service", TimeLimit: 10 * time.Minute},
				{Name: "post-review", TimeLimit: 30 * time.Minute},
			},
			Resources:    []string{"incident-commander", "forensics-workstation", "comms-bridge"},
			EscalateWhen: DefaultEscalationCriteria(),
			AdvanceWhen:  DefaultAdvanceCriteria(7),
		},
		{
			Name:        "intrusion-standard",
			Type:        domain.TypeIntrusion,
			MinSeverity: domain.SeverityLow,
			Steps: []Step{
				{Name: "triage", TimeLimit: 5 * time.Minute},
				{Name: "revoke-credentials", TimeLimit: 5 * time.Minute},
				{Name: "isolate-systems", TimeLimit: 10 * time.Minute},
				{Name: "forensic-capture", TimeLimit: 20 * time.Minute},
				{Name: "restore-service", TimeLimit: 15 * time.Minute},
				{Name: "post-review", TimeLimit: 30 * time.Minute},
			},
			Resources:    []string{"on-call-responder", "identity-tooling"},
			EscalateWhen: DefaultEscalationCriteria(),
			AdvanceWhen:  DefaultAdvanceCriteria(6),
		},
		{
			Name:        "exfiltration-standard",
			Type:        domain.TypeDataExfiltration,
			MinSeverity: domain.SeverityModerate,
			Steps: []Step{
				{Name: "triage", TimeLimit: 3 * time.Minute},
				{Name: "block-egress", TimeLimit: 5 * time.Minute},
				{Name: "scope-data-loss", TimeLimit: 30 * time.Minute},
				{Name: "notify-stakeholders", TimeLimit: 10 * time.Minute},
				{Name: "restore-service", TimeLimit: 15 * time.Minute},
				{Name: "post-review", TimeLimit: 30 * time.Minute},
			},
			Resources:    []string{"incident-commander", "legal-liaison"},
			EscalateWhen: DefaultEscalationCriteria(),
			AdvanceWhen:  DefaultAdvanceCriteria(6),
		},
		{
			Name:        "dos-standard",
			Type:        domain.TypeDenialOfService,
			MinSeverity: domain.SeverityLow,
			Steps: []Step{
				{Name: "triage", TimeLimit: 3 * time.Minute},
				{Name: "enable-mitigation", TimeLimit: 5 * time.Minute},
				{Name: "shift-traffic", TimeLimit: 10 * time.Minute},
				{Name: "restore-service", TimeLimit: 10 * time.Minute},
				{Name: "post-review", TimeLimit: 20 * time.Minute},
			},
			Resources:    []string{"on-call-responder", "edge-tooling"},
			EscalateWhen: DefaultEscalationCriteria(),
			AdvanceWhen:  DefaultAdvanceCriteria(5),
		},
	}

	for _, p := range builtins {
		if err := r.Register(p); err != nil {
			return fmt.Errorf("seed procedures: %w", err)
		}
	}
	return nil
}
