package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/sqlutil"
)

// AddDriver enters an ad hoc competitor into a session with the next sort
// order. Roster drivers are only created through round seeding.
func (s *Store) AddDriver(ctx context.Context, sessionID, name string) (*models.Driver, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: driver name is required", ErrInvalid)
	}

	driver := &models.Driver{ID: s.newID("driver"), Name: name, IsTeam: false}
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireExists(ctx, tx, "sessions", "session", sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO drivers (id, session_id, name, sort_order, is_team)
			VALUES ($1, $2, $3,
				(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM drivers WHERE session_id = $2), FALSE)`,
			driver.ID, sessionID, name)
		if err != nil {
			return fmt.Errorf("failed to insert driver: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// RemoveDriver deletes a driver and its result in one transaction so no
// orphan result survives.
func (s *Store) RemoveDriver(ctx context.Context, sessionID, driverID string) error {
	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM results WHERE session_id = $1 AND driver_id = $2`,
			sessionID, driverID); err != nil {
			return fmt.Errorf("failed to delete result: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM drivers WHERE session_id = $1 AND id = $2`,
			sessionID, driverID)
		if err != nil {
			return fmt.Errorf("failed to delete driver: %w", err)
		}
		return requireRow(res, "driver", driverID)
	})
}
