package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/sqlutil"
)

// CreateSession creates a session in the given category with the next sort
// order within that category. Sessions in the final-and-race-2 category are
// endurance sessions.
func (s *Store) CreateSession(ctx context.Context, category models.Category, kind models.SessionKind, raceClass models.RaceClass, label string, roundID *string) (string, error) {
	if !category.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalid, category)
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown session type %q", ErrInvalid, kind)
	}
	if label == "" {
		return "", fmt.Errorf("%w: session label is required", ErrInvalid)
	}

	id := s.newID("session")
	endurance := category == models.CategoryFinalAndRace2

	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if roundID != nil {
			if err := requireExists(ctx, tx, "rounds", "round", *roundID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, type, race_class, label, category, status, sort_order, round_id, is_endurance)
			VALUES ($1, $2, $3, $4, $5, $6,
				(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM sessions WHERE category = $5), $7, $8)`,
			id, string(kind), string(raceClass), label, string(category),
			string(models.StatusNotStarted), sqlutil.ToSqlString(roundID), endurance)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetSession loads the session header used for validation and broadcast
// routing, including how many drivers are entered.
func (s *Store) GetSession(ctx context.Context, id string) (*models.SessionInfo, error) {
	var info models.SessionInfo
	var roundID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.type, s.race_class, s.label, s.category, s.status, s.is_endurance, s.round_id,
			(SELECT COUNT(*) FROM drivers d WHERE d.session_id = s.id)
		FROM sessions s WHERE s.id = $1`, id).Scan(
		&info.ID, &info.Kind, &info.RaceClass, &info.Label, &info.Category,
		&info.Status, &info.IsEndurance, &roundID, &info.DriverCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	info.RoundID = sqlutil.FromSqlStringPtr(roundID)
	return &info, nil
}

// UpdateSessionLabel renames a session.
func (s *Store) UpdateSessionLabel(ctx context.Context, id, label string) error {
	if label == "" {
		return fmt.Errorf("%w: session label is required", ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET label = $1 WHERE id = $2`, label, id)
	if err != nil {
		return fmt.Errorf("failed to update session label: %w", err)
	}
	return requireRow(res, "session", id)
}

// UpdateSessionClass reassigns a session to another race class.
func (s *Store) UpdateSessionClass(ctx context.Context, id string, raceClass models.RaceClass) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET race_class = $1 WHERE id = $2`, string(raceClass), id)
	if err != nil {
		return fmt.Errorf("failed to update session class: %w", err)
	}
	return requireRow(res, "session", id)
}

// SetSessionEndurance flips the endurance flag on a session.
func (s *Store) SetSessionEndurance(ctx context.Context, id string, endurance bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_endurance = $1 WHERE id = $2`, endurance, id)
	if err != nil {
		return fmt.Errorf("failed to update endurance flag: %w", err)
	}
	return requireRow(res, "session", id)
}

func requireExists(ctx context.Context, tx *sql.Tx, table, entity, id string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := tx.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up %s: %w", entity, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
	}
	return nil
}
