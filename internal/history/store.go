// Package history persists incidents for dashboard queries and audit.
package history

import (
	"context"
	"errors"

	"github.com/quintal-io/responder/internal/domain"
)

// ErrNotFound is returned when an incident does not exist.
var ErrNotFound = errors.New("incident not found")

// Store records incidents and serves dashboard queries.
type Store interface {
	// SaveIncident inserts the incident, or replaces the stored copy
	// when the ID already exists.
	SaveIncident(ctx context.Context, inc *domain.Incident) error

	// GetIncident returns one incident by ID or ErrNotFound.
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)

	// ListRecent returns up to limit incidents, newest detection first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Incident, error)

	// ListByStatus returns up to limit incidents with the given status,
	// newest detection first.
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Incident, error)
}
