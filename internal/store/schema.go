package store

import (
	"context"
	"fmt"
)

// EnsureSchema creates the base tables in their historical shape. Columns
// added later in the product's life are handled by Migrate, so a fresh
// database exercises the same migration path as an old one.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const baseSchema = `
CREATE TABLE IF NOT EXISTS rounds (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    race_class TEXT NOT NULL,
    label TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'not-started',
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS drivers (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_drivers_session_id ON drivers(session_id);

CREATE TABLE IF NOT EXISTS results (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    driver_id TEXT NOT NULL,
    driver_name TEXT NOT NULL,
    position INTEGER,
    best_lap TEXT NOT NULL DEFAULT '',
    total_time TEXT NOT NULL DEFAULT '',
    gap TEXT NOT NULL DEFAULT '',
    UNIQUE (session_id, driver_id)
);

CREATE INDEX IF NOT EXISTS idx_results_session_id ON results(session_id);
`
