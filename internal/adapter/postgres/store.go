// Package postgres is the Ledger Store client. The store is a shared
// external resource: the pipeline assumes no read-your-writes guarantees and
// achieves consistency purely through conditional writes keyed by
// deterministic IDs (INSERT ... ON CONFLICT DO NOTHING, UPDATE guarded by
// the current status), so duplicate invocations are no-ops past the first.
//
// Expected tables: policies, outage_events, weather_observations, claims,
// payouts, audit_log. Schema migration mechanics live with the warehouse
// team, not here.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// ErrNotFound is wrapped by lookups when no row matches.
var ErrNotFound = domain.ErrNotFound

// Store provides read/write access to policies, outages, weather, claims,
// payouts, and the audit log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the ledger database and verifies the connection.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing connection pool, for tests.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}
