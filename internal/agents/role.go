package agents

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// OverflowPolicy controls what happens to activation requests that
// arrive while a role is busy.
type OverflowPolicy int

// Overflow policies.
const (
	// OverflowQueue holds requests FIFO up to the queue depth.
	OverflowQueue OverflowPolicy = iota
	// OverflowReject refuses requests while the role is busy.
	OverflowReject
)

// Outcome tags an activation result. A slow responder is reported
// degraded, never turned into a fatal failure.
type Outcome string

// Activation outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

// Degradation and failure reasons.
const (
	ReasonLatencyViolation = "latency_violation"
	ReasonAnalysisError    = "analysis_error"
	ReasonAnalysisTimeout  = "analysis_timeout"
	ReasonQueueFull        = "queue_full"
	ReasonCancelled        = "cancelled"
)

// ActivationState is a role's lifecycle state.
type ActivationState int32

// Role states.
const (
	StateIdle ActivationState = iota
	StateActivating
)

// Activation is the result of activating one role for one incident.
type Activation struct {
	Role       string        `json:"role"`
	Kind       Kind          `json:"-"`
	Outcome    Outcome       `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Assessment *Assessment   `json:"assessment,omitempty"`
	Err        error         `json:"-"`
}

// RoleConfig configures one responder role.
type RoleConfig struct {
	ID   string
	Kind Kind
	// SLA is the activation-latency budget. Exceeding it completes the
	// activation as degraded.
	SLA time.Duration
	// HardTimeoutFactor bounds the analysis call at SLA multiplied by
	// this factor; deadlines are never indefinite.
	HardTimeoutFactor int
	Overflow          OverflowPolicy
	QueueDepth        int
	Peers             []string
	// Analyzer overrides the kind's default analysis.
	Analyzer Analyzer
}

type activationRequest struct {
	ctx      context.Context
	incident *domain.Incident
	reply    chan Activation
}

// Role is a long-lived responder. Its mutable state (assignment count,
// activation state) is touched only by its owner goroutine; callers
// interact exclusively through Activate.
type Role struct {
	id       string
	kind     Kind
	sla      time.Duration
	hardCap  time.Duration
	overflow OverflowPolicy
	analyzer Analyzer
	peers    []string

	requests    chan activationRequest
	assignments atomic.Int64
	state       atomic.Int32
	peerNotes   atomic.Int64

	pool *Pool
}

// NewRole builds a role from config, filling defaults.
func NewRole(cfg RoleConfig) *Role {
	if cfg.Analyzer == nil {
		cfg.Analyzer = defaultAnalyzer(cfg.Kind)
	}
	if cfg.HardTimeoutFactor < 1 {
		cfg.HardTimeoutFactor = 10
	}
	depth := cfg.QueueDepth
	if cfg.Overflow == OverflowReject || depth < 1 {
		depth = 1
	}
	return &Role{
		id:       cfg.ID,
		kind:     cfg.Kind,
		sla:      cfg.SLA,
		hardCap:  cfg.SLA * time.Duration(cfg.HardTimeoutFactor),
		overflow: cfg.Overflow,
		analyzer: cfg.Analyzer,
		peers:    cfg.Peers,
		requests: make(chan activationRequest, depth),
	}
}

// ID returns the role identifier.
func (r *Role) ID() string { return r.id }

// Kind returns the role specialization.
func (r *Role) Kind() Kind { return r.kind }

// SLA returns the activation-latency budget.
func (r *Role) SLA() time.Duration { return r.sla }

// State returns the current activation state.
func (r *Role) State() ActivationState {
	return ActivationState(r.state.Load())
}

// Assignments returns the number of accepted, not yet finished
// activation requests.
func (r *Role) Assignments() int {
	return int(r.assignments.Load())
}

// PeerNotifications returns how many peer notes this role has received.
func (r *Role) PeerNotifications() int {
	return int(r.peerNotes.Load())
}

// Activate requests an analysis of the incident and waits for the
// outcome. Requests are serialized through the role's owner goroutine;
// a role never runs two analyses concurrently. With OverflowReject a
// busy role answers immediately with a rejected outcome.
func (r *Role) Activate(ctx context.Context, inc *domain.Incident) Activation {
	req := activationRequest{ctx: ctx, incident: inc, reply: make(chan Activation, 1)}

	if r.overflow == OverflowReject {
		select {
		case r.requests <- req:
			r.assignments.Add(1)
		default:
			recordActivation(r.id, OutcomeRejected)
			return Activation{Role: r.id, Kind: r.kind, Outcome: OutcomeRejected, Reason: ReasonQueueFull}
		}
	} else {
		select {
		case r.requests <- req:
			r.assignments.Add(1)
		case <-ctx.Done():
			recordActivation(r.id, OutcomeFailed)
			return Activation{Role: r.id, Kind: r.kind, Outcome: OutcomeFailed, Reason: ReasonCancelled, Err: ctx.Err()}
		}
	}

	select {
	case act := <-req.reply:
		return act
	case <-ctx.Done():
		// The owner still finishes the queued work and records its
		// outcome; the caller just stops waiting.
		return Activation{Role: r.id, Kind: r.kind, Outcome: OutcomeFailed, Reason: ReasonCancelled, Err: ctx.Err()}
	}
}

// run is the role's owner goroutine. It is the only code that mutates
// role state.
func (r *Role) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case req := <-r.requests:
			act := r.process(req)
			r.assignments.Add(-1)
			req.reply <- act
			recordActivation(r.id, act.Outcome)
			observeActivation(r.id, act.Elapsed)
		}
	}
}

func (r *Role) process(req activationRequest) Activation {
	r.state.Store(int32(StateActivating))
	defer r.state.Store(int32(StateIdle))

	start := time.Now()

	actx, cancel := context.WithTimeout(req.ctx, r.hardCap)
	assessment, err := r.analyzer.Analyze(actx, req.incident)
	timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
	cancel()

	elapsed := time.Since(start)

	act := Activation{Role: r.id, Kind: r.kind, Elapsed: elapsed, Assessment: assessment}
	switch {
	case err != nil:
		act.Outcome = OutcomeFailed
		act.Err = err
		act.Reason = ReasonAnalysisError
		if timedOut {
			act.Reason = ReasonAnalysisTimeout
		}
		slog.Warn("role activation failed",
			"role", r.id,
			"incident_id", req.incident.ID,
			"reason", act.Reason,
			"error", err,
		)
	case elapsed > r.sla:
		act.Outcome = OutcomeDegraded
		act.Reason = ReasonLatencyViolation
		slog.Warn("role activation degraded",
			"role", r.id,
			"incident_id", req.incident.ID,
			"sla", r.sla,
			"elapsed", elapsed,
		)
	default:
		act.Outcome = OutcomeCompleted
	}

	if act.Outcome != OutcomeFailed {
		r.notifyPeers(req.incident.ID)
	}

	return act
}

// notifyPeers sends a best-effort, fire-and-forget note to declared
// peer roles.
func (r *Role) notifyPeers(incidentID string) {
	if r.pool == nil {
		return
	}
	for _, peerID := range r.peers {
		peer, ok := r.pool.Role(peerID)
		if !ok {
			continue
		}
		go peer.observeNote(r.id, incidentID)
	}
}

func (r *Role) observeNote(from, incidentID string) {
	r.peerNotes.Add(1)
	slog.Debug("peer notification", "role", r.id, "from", from, "incident_id", incidentID)
}

// drain rejects queued requests so no caller is left waiting after
// shutdown.
func (r *Role) drain() {
	for {
		select {
		case req := <-r.requests:
			r.assignments.Add(-1)
			req.reply <- Activation{Role: r.id, Kind: r.kind, Outcome: OutcomeFailed, Reason: ReasonCancelled}
		default:
			return
		}
	}
}
