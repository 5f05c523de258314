// Package store is the sole writer of durable race data. Every other
// component reads and mutates rounds, sessions, drivers and results through
// its operations; result saves are transactional full replaces.
package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kpl-live/timing/internal/roster"
)

// Store owns the Postgres-backed race data.
type Store struct {
	db       *sql.DB
	clock    clockwork.Clock
	template *roster.Template
}

// New creates a Store over an open database handle. The clock feeds id
// generation (a fake clock makes ids deterministic in tests). template may be
// nil, in which case created rounds start empty.
func New(db *sql.DB, clock clockwork.Clock, template *roster.Template) *Store {
	return &Store{db: db, clock: clock, template: template}
}

// newID builds a readable unique id like "round-1717171717000-3f2a".
func (s *Store) newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, s.clock.Now().UnixMilli(), uuid.NewString()[:4])
}
