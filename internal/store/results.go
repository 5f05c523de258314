package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/sqlutil"
)

// SaveQualifyingResults replaces a qualifying session's result set and
// updates its status, all or nothing: a failure mid-insert leaves the
// previous results intact.
func (s *Store) SaveQualifyingResults(ctx context.Context, sessionID string, results []models.QualifyingResult, status models.SessionStatus) error {
	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if err := replaceResultsHeader(ctx, tx, sessionID, status); err != nil {
			return err
		}
		for _, r := range results {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO results (session_id, driver_id, driver_name, position, best_lap)
				VALUES ($1, $2, $3, $4, $5)`,
				sessionID, r.DriverID, r.DriverName, sqlutil.ToSqlInt32(r.Position), r.BestLap); err != nil {
				return fmt.Errorf("failed to insert result for driver %q: %w", r.DriverID, err)
			}
		}
		return nil
	})
}

// SaveRaceResults is the race/heat/final counterpart of
// SaveQualifyingResults, carrying gap timing and the endurance lap counters.
func (s *Store) SaveRaceResults(ctx context.Context, sessionID string, results []models.RaceResult, status models.SessionStatus) error {
	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if err := replaceResultsHeader(ctx, tx, sessionID, status); err != nil {
			return err
		}
		for _, r := range results {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO results (session_id, driver_id, driver_name, position, best_lap, total_time, gap, lap_count, team_lap_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				sessionID, r.DriverID, r.DriverName, sqlutil.ToSqlInt32(r.Position),
				r.BestLap, r.TotalTime, r.Gap, r.LapCount, r.TeamLapCount); err != nil {
				return fmt.Errorf("failed to insert result for driver %q: %w", r.DriverID, err)
			}
		}
		return nil
	})
}

// replaceResultsHeader updates the session status and clears the old result
// set inside the caller's transaction.
func replaceResultsHeader(ctx context.Context, tx *sql.Tx, sessionID string, status models.SessionStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = $1 WHERE id = $2`, string(status), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if err := requireRow(res, "session", sessionID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM results WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}
