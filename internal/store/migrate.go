package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

// A migration is one idempotent schema-evolution step. Steps are order
// dependent (later ones assume earlier columns exist), so they run strictly
// in sequence, each checking whether it already applied.
type migration struct {
	name  string
	apply func(ctx context.Context, tx *sql.Tx) (applied bool, err error)
}

// Migrate brings an existing database up to the current schema without data
// loss. Rerunning on an up-to-date database is a guaranteed no-op.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range s.migrations() {
		var applied bool
		err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
			var err error
			applied, err = m.apply(ctx, tx)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
		if applied {
			log.Info().Str("migration", m.name).Msg("applied schema migration")
		} else {
			log.Debug().Str("migration", m.name).Msg("schema migration already applied")
		}
	}
	return nil
}

func (s *Store) migrations() []migration {
	return []migration{
		{"sessions-round-id", s.migrateSessionRoundID},
		{"adopt-orphan-sessions", s.migrateOrphanSessions},
		{"rounds-tab-labels-and-classes", s.migrateRoundLabels},
		{"results-lap-counts", s.migrateLapCounts},
		{"sessions-endurance-flag", s.migrateEnduranceFlag},
		{"drivers-team-flag", s.migrateTeamFlag},
	}
}

// migrateSessionRoundID gives sessions an owning round.
func (s *Store) migrateSessionRoundID(ctx context.Context, tx *sql.Tx) (bool, error) {
	ok, err := columnExists(ctx, tx, "sessions", "round_id")
	if err != nil || ok {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`ALTER TABLE sessions ADD COLUMN round_id TEXT REFERENCES rounds(id) ON DELETE CASCADE`)
	return err == nil, err
}

// migrateOrphanSessions synthesizes a fallback round for sessions created
// before rounds existed. A no-op once every session has an owner.
func (s *Store) migrateOrphanSessions(ctx context.Context, tx *sql.Tx) (bool, error) {
	var orphans int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE round_id IS NULL`).Scan(&orphans); err != nil {
		return false, err
	}
	if orphans == 0 {
		return false, nil
	}

	roundID := s.newID("round")
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rounds (id, name, sort_order) VALUES ($1, $2, 0)`,
		roundID, "Round 2"); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET round_id = $1 WHERE round_id IS NULL`, roundID); err != nil {
		return false, err
	}

	log.Info().Int("sessions", orphans).Str("round_id", roundID).
		Msg("adopted orphan sessions into fallback round")
	return true, nil
}

// migrateRoundLabels adds per-round tab labels and the class list. Rounds
// that already exist keep the legacy label and class scheme; the column
// defaults carry the current scheme for rounds created afterwards.
func (s *Store) migrateRoundLabels(ctx context.Context, tx *sql.Tx) (bool, error) {
	ok, err := columnExists(ctx, tx, "rounds", "tab1_label")
	if err != nil || ok {
		return false, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM rounds`)
	if err != nil {
		return false, err
	}
	var legacyIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return false, err
		}
		legacyIDs = append(legacyIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, err
	}
	rows.Close()

	alters := []string{
		`ALTER TABLE rounds ADD COLUMN tab1_label TEXT NOT NULL DEFAULT 'Qualifying'`,
		`ALTER TABLE rounds ADD COLUMN tab2_label TEXT NOT NULL DEFAULT 'Super Sprint'`,
		`ALTER TABLE rounds ADD COLUMN tab3_label TEXT NOT NULL DEFAULT 'Endurance'`,
		`ALTER TABLE rounds ADD COLUMN classes JSONB NOT NULL DEFAULT '["junior","pro"]'`,
	}
	for _, stmt := range alters {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return false, err
		}
	}

	legacyClasses, err := json.Marshal([]models.RaceClass{
		models.ClassWomen, models.ClassJunior, models.ClassProAm, models.ClassPro,
	})
	if err != nil {
		return false, err
	}
	for _, id := range legacyIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE rounds SET tab2_label = 'Heats & Race 1', tab3_label = 'Final & Race 2', classes = $1 WHERE id = $2`,
			legacyClasses, id); err != nil {
			return false, err
		}
	}
	return true, nil
}

// migrateLapCounts adds the per-result endurance lap counters.
func (s *Store) migrateLapCounts(ctx context.Context, tx *sql.Tx) (bool, error) {
	applied := false
	for _, col := range []string{"lap_count", "team_lap_count"} {
		ok, err := columnExists(ctx, tx, "results", col)
		if err != nil {
			return applied, err
		}
		if ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`ALTER TABLE results ADD COLUMN %s INTEGER NOT NULL DEFAULT 0`, col)); err != nil {
			return applied, err
		}
		applied = true
	}
	return applied, nil
}

// migrateEnduranceFlag adds the per-session endurance flag. Historical
// sessions in the final-and-race-2 category become endurance when the column
// first appears.
func (s *Store) migrateEnduranceFlag(ctx context.Context, tx *sql.Tx) (bool, error) {
	ok, err := columnExists(ctx, tx, "sessions", "is_endurance")
	if err != nil || ok {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`ALTER TABLE sessions ADD COLUMN is_endurance BOOLEAN NOT NULL DEFAULT FALSE`); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET is_endurance = TRUE WHERE category = $1`,
		string(models.CategoryFinalAndRace2)); err != nil {
		return false, err
	}
	return true, nil
}

// migrateTeamFlag persists whether a driver came from the seeded roster.
func (s *Store) migrateTeamFlag(ctx context.Context, tx *sql.Tx) (bool, error) {
	ok, err := columnExists(ctx, tx, "drivers", "is_team")
	if err != nil || ok {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`ALTER TABLE drivers ADD COLUMN is_team BOOLEAN NOT NULL DEFAULT FALSE`)
	return err == nil, err
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	return exists, nil
}
