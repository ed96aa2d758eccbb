package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quintal-io/responder/internal/domain"
)

// Pool holds the long-lived responder roles shared across incidents.
type Pool struct {
	mu      sync.Mutex
	roles   []*Role
	byID    map[string]*Role
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// PoolConfig configures the default role set.
type PoolConfig struct {
	DefaultSLA time.Duration
	// SLAOverrides is keyed by kind name.
	SLAOverrides      map[string]time.Duration
	Overflow          OverflowPolicy
	QueueDepth        int
	HardTimeoutFactor int
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{byID: make(map[string]*Role)}
}

// NewDefaultPool creates a pool with one role per kind, configured from
// the SLA table.
func NewDefaultPool(cfg PoolConfig) *Pool {
	p := NewPool()
	for _, k := range Kinds() {
		sla := cfg.DefaultSLA
		if override, ok := cfg.SLAOverrides[k.String()]; ok {
			sla = override
		}
		// Every role notifies the comms liaison; comms stays quiet.
		var peers []string
		if k != KindComms {
			peers = []string{KindComms.String()}
		}
		// Add never fails here: kind names are unique.
		_ = p.Add(NewRole(RoleConfig{
			ID:                k.String(),
			Kind:              k,
			SLA:               sla,
			HardTimeoutFactor: cfg.HardTimeoutFactor,
			Overflow:          cfg.Overflow,
			QueueDepth:        cfg.QueueDepth,
			Peers:             peers,
		}))
	}
	return p
}

// Add registers a role. Roles must be added before Start.
func (p *Pool) Add(r *Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("add role %q: pool already started", r.id)
	}
	if _, exists := p.byID[r.id]; exists {
		return fmt.Errorf("add role %q: duplicate id", r.id)
	}
	r.pool = p
	p.roles = append(p.roles, r)
	p.byID[r.id] = r
	return nil
}

// Start launches each role's owner goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for _, r := range p.roles {
		p.wg.Add(1)
		go func(r *Role) {
			defer p.wg.Done()
			r.run(ctx)
		}(r)
	}
	p.started = true
	slog.Info("agent pool started", "roles", len(p.roles))
}

// Stop cancels the owner goroutines and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	slog.Info("agent pool stopped")
}

// Role looks up a role by id.
func (p *Pool) Role(id string) (*Role, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.byID[id]
	return r, ok
}

// Roles returns all roles in registration order.
func (p *Pool) Roles() []*Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Role(nil), p.roles...)
}

// Relevant returns the roles whose kind responds to the given incident
// classification.
func (p *Pool) Relevant(t domain.IncidentType, sev domain.Severity) []*Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Role
	for _, r := range p.roles {
		if r.kind.Relevant(t, sev) {
			out = append(out, r)
		}
	}
	return out
}
