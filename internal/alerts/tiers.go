// Package alerts derives notifications from incident severity and fans
// out delivery across channels with acknowledgment tracking.
package alerts

import (
	"sort"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// Tier is one escalation tier: the recipients and channels added once
// an incident reaches the tier's severity floor.
type Tier struct {
	Level       int
	MinSeverity domain.Severity
	Recipients  []string
	Channels    []domain.ChannelType
}

// TierTable is the escalation-tier configuration. Recipient sets grow
// monotonically with severity: an alert at a given severity reaches the
// recipients of every tier at or below it.
type TierTable struct {
	tiers                 []Tier
	escalateAfter         time.Duration
	escalateAfterCritical time.Duration
}

// NewTierTable builds a table from tiers, sorting by level.
func NewTierTable(escalateAfter, escalateAfterCritical time.Duration, tiers ...Tier) TierTable {
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	return TierTable{
		tiers:                 sorted,
		escalateAfter:         escalateAfter,
		escalateAfterCritical: escalateAfterCritical,
	}
}

// DefaultTierTable returns the built-in escalation ladder.
func DefaultTierTable(escalateAfter, escalateAfterCritical time.Duration) TierTable {
	return NewTierTable(escalateAfter, escalateAfterCritical,
		Tier{
			Level:       1,
			MinSeverity: domain.SeverityLow,
			Recipients:  []string{"oncall-responder"},
			Channels:    []domain.ChannelType{domain.ChannelTypeEmail},
		},
		Tier{
			Level:       2,
			MinSeverity: domain.SeverityModerate,
			Recipients:  []string{"team-lead"},
			Channels:    []domain.ChannelType{domain.ChannelTypeWebhook},
		},
		Tier{
			Level:       3,
			MinSeverity: domain.SeverityHigh,
			Recipients:  []string{"ops-manager"},
			Channels:    []domain.ChannelType{domain.ChannelTypeSMS},
		},
		Tier{
			Level:       4,
			MinSeverity: domain.SeverityCritical,
			Recipients:  []string{"security-director"},
			Channels:    []domain.ChannelType{domain.ChannelTypePager},
		},
		Tier{
			Level:       5,
			MinSeverity: domain.SeverityCatastrophic,
			Recipients:  []string{"cto", "crisis-team"},
			Channels:    []domain.ChannelType{domain.ChannelTypePager},
		},
	)
}

// levelFor returns the highest tier level whose severity floor is at or
// below sev.
func (t TierTable) levelFor(sev domain.Severity) int {
	level := 0
	for _, tier := range t.tiers {
		if sev >= tier.MinSeverity && tier.Level > level {
			level = tier.Level
		}
	}
	return level
}

// maxLevel returns the table's top tier level.
func (t TierTable) maxLevel() int {
	if len(t.tiers) == 0 {
		return 0
	}
	return t.tiers[len(t.tiers)-1].Level
}

// audience collects the union of recipients and channels of every tier
// up to and including level, preserving tier order and deduplicating.
func (t TierTable) audience(level int) (recipients []string, channels []domain.ChannelType) {
	seenR := make(map[string]bool)
	seenC := make(map[domain.ChannelType]bool)
	for _, tier := range t.tiers {
		if tier.Level > level {
			continue
		}
		for _, r := range tier.Recipients {
			if !seenR[r] {
				seenR[r] = true
				recipients = append(recipients, r)
			}
		}
		for _, c := range tier.Channels {
			if !seenC[c] {
				seenC[c] = true
				channels = append(channels, c)
			}
		}
	}
	return recipients, channels
}

// timerFor returns the escalation timer for a severity: the shorter
// budget applies from critical upward.
func (t TierTable) timerFor(sev domain.Severity) time.Duration {
	if sev >= domain.SeverityCritical {
		return t.escalateAfterCritical
	}
	return t.escalateAfter
}
