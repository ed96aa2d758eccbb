// Package memstore is an in-memory history store used when no database
// is configured, and by tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history"
)

// Store keeps incidents in memory. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	incidents map[string]*domain.Incident
}

// New creates an empty store.
func New() *Store {
	return &Store{incidents: make(map[string]*domain.Incident)}
}

// SaveIncident inserts or replaces the incident. A copy is stored so
// later mutation by the caller does not leak in.
func (s *Store) SaveIncident(_ context.Context, inc *domain.Incident) error {
	cp := *inc
	if inc.ResolvedAt != nil {
		t := *inc.ResolvedAt
		cp.ResolvedAt = &t
	}
	cp.AffectedSystems = append([]string(nil), inc.AffectedSystems...)

	s.mu.Lock()
	s.incidents[inc.ID] = &cp
	s.mu.Unlock()
	return nil
}

// GetIncident returns one incident by ID.
func (s *Store) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	s.mu.RLock()
	inc, ok := s.incidents[id]
	s.mu.RUnlock()
	if !ok {
		return nil, history.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

// ListRecent returns up to limit incidents, newest detection first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]*domain.Incident, error) {
	return s.list(limit, func(*domain.Incident) bool { return true }), nil
}

// ListByStatus returns up to limit incidents with the status, newest
// detection first.
func (s *Store) ListByStatus(_ context.Context, status domain.Status, limit int) ([]*domain.Incident, error) {
	return s.list(limit, func(inc *domain.Incident) bool { return inc.Status == status }), nil
}

func (s *Store) list(limit int, keep func(*domain.Incident) bool) []*domain.Incident {
	s.mu.RLock()
	out := make([]*domain.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if keep(inc) {
			cp := *inc
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ history.Store = (*Store)(nil)
