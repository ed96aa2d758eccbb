// Package detect runs pluggable detection probes concurrently and
// turns the best candidate into an incident.
package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quintal-io/responder/internal/domain"
)

// Probe supplies domain-specific signal analysis. A probe returns nil
// when it sees nothing, or a classified candidate with a confidence
// score.
type Probe interface {
	Name() string
	Run(ctx context.Context) (*domain.Candidate, error)
}

// Config contains detector settings.
type Config struct {
	// ProbeTimeout bounds each probe individually.
	ProbeTimeout time.Duration
	// AcceptThreshold is the minimum confidence for a candidate to be
	// considered.
	AcceptThreshold float64
}

// Detector fans out all configured probes per cycle and selects at most
// one incident candidate.
type Detector struct {
	cfg    Config
	probes []Probe
}

// New creates a detector over the given probes.
func New(cfg Config, probes ...Probe) *Detector {
	return &Detector{cfg: cfg, probes: probes}
}

type probeResult struct {
	probe     string
	candidate *domain.Candidate
	finished  time.Time
}

// Detect runs every probe concurrently with an individual timeout and
// returns the highest-confidence candidate at or above the acceptance
// threshold as a new incident, or nil when no probe qualifies.
//
// A probe's failure is logged and excluded from selection; it never
// cancels sibling probes.
func (d *Detector) Detect(ctx context.Context) *domain.Incident {
	if len(d.probes) == 0 {
		return nil
	}

	start := time.Now()
	results := make(chan probeResult, len(d.probes))

	var wg sync.WaitGroup
	for _, p := range d.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			d.runProbe(ctx, p, results)
		}(p)
	}
	wg.Wait()
	close(results)

	best := d.selectBest(results)
	observeDetectCycle(time.Since(start), best != nil)
	if best == nil {
		return nil
	}

	inc := newIncident(best)
	slog.Info("incident detected",
		"incident_id", inc.ID,
		"type", inc.Type,
		"severity", inc.Severity.String(),
		"confidence", best.Confidence,
	)
	recordDetection(inc.Type)
	return inc
}

func (d *Detector) runProbe(ctx context.Context, p Probe, results chan<- probeResult) {
	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	// Probe panics are isolated the same way probe errors are.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("probe panicked", "probe", p.Name(), "panic", r)
			recordProbe(p.Name(), "panic")
		}
	}()

	candidate, err := p.Run(probeCtx)
	switch {
	case err != nil:
		if probeCtx.Err() != nil {
			slog.Warn("probe timed out", "probe", p.Name(), "timeout", d.cfg.ProbeTimeout)
			recordProbe(p.Name(), "timeout")
		} else {
			slog.Warn("probe failed", "probe", p.Name(), "error", err)
			recordProbe(p.Name(), "error")
		}
	case candidate == nil:
		recordProbe(p.Name(), "clear")
	default:
		recordProbe(p.Name(), "candidate")
		results <- probeResult{probe: p.Name(), candidate: candidate, finished: time.Now()}
	}
}

// selectBest picks the highest-confidence acceptable candidate; ties
// are broken by earliest completion.
func (d *Detector) selectBest(results <-chan probeResult) *domain.Candidate {
	var best *probeResult
	for r := range results {
		r := r
		if r.candidate.Confidence < d.cfg.AcceptThreshold {
			continue
		}
		if best == nil ||
			r.candidate.Confidence > best.candidate.Confidence ||
			(r.candidate.Confidence == best.candidate.Confidence && r.finished.Before(best.finished)) {
			best = &r
		}
	}
	if best == nil {
		return nil
	}
	return best.candidate
}

func newIncident(c *domain.Candidate) *domain.Incident {
	severity := c.Severity
	if !severity.IsValid() {
		severity = domain.SeverityModerate
	}
	return &domain.Incident{
		ID:              uuid.New().String(),
		Type:            c.Type,
		Severity:        severity,
		Description:     c.Description,
		AffectedSystems: append([]string(nil), c.AffectedSystems...),
		DetectedAt:      time.Now().UTC(),
		Phase:           domain.PhaseDetection,
		Status:          domain.StatusActive,
	}
}
