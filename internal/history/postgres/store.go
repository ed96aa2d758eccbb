// Package postgres provides the PostgreSQL implementation of the
// history store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites the connection URL scheme for the migrate pgx
// driver, which registers itself as pgx5.
func migrateURL(databaseURL string) string {
	if rest, ok := strings.CutPrefix(databaseURL, "postgres://"); ok {
		return "pgx5://" + rest
	}
	if rest, ok := strings.CutPrefix(databaseURL, "postgresql://"); ok {
		return "pgx5://" + rest
	}
	return databaseURL
}

// Store implements history.Store using PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// SaveIncident inserts the incident or replaces the stored copy.
func (s *Store) SaveIncident(ctx context.Context, inc *domain.Incident) error {
	query := `
		INSERT INTO incidents (id, type, severity, description, affected_systems, detected_at, phase, status, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			status = EXCLUDED.status,
			resolved_at = EXCLUDED.resolved_at
	`
	// A nil slice would encode as NULL against the NOT NULL column.
	systems := inc.AffectedSystems
	if systems == nil {
		systems = []string{}
	}

	_, err := s.db.Exec(ctx, query,
		inc.ID,
		inc.Type,
		inc.Severity,
		inc.Description,
		systems,
		inc.DetectedAt,
		inc.Phase,
		inc.Status,
		inc.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save incident: %w", err)
	}
	return nil
}

// GetIncident returns one incident by ID.
func (s *Store) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, type, severity, description, affected_systems, detected_at, phase, status, resolved_at
		FROM incidents
		WHERE id = $1
	`
	inc, err := scanIncident(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// ListRecent returns up to limit incidents, newest detection first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*domain.Incident, error) {
	query := `
		SELECT id, type, severity, description, affected_systems, detected_at, phase, status, resolved_at
		FROM incidents
		ORDER BY detected_at DESC
		LIMIT $1
	`
	return s.queryIncidents(ctx, query, effectiveLimit(limit))
}

// ListByStatus returns up to limit incidents with the status, newest
// detection first.
func (s *Store) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Incident, error) {
	query := `
		SELECT id, type, severity, description, affected_systems, detected_at, phase, status, resolved_at
		FROM incidents
		WHERE status = $1
		ORDER BY detected_at DESC
		LIMIT $2
	`
	return s.queryIncidents(ctx, query, status, effectiveLimit(limit))
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}

func (s *Store) queryIncidents(ctx context.Context, query string, args ...any) ([]*domain.Incident, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.Type,
		&inc.Severity,
		&inc.Description,
		&inc.AffectedSystems,
		&inc.DetectedAt,
		&inc.Phase,
		&inc.Status,
		&inc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

var _ history.Store = (*Store)(nil)
