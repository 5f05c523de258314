package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/sqlutil"
)

// FullState returns every session (optionally filtered to one round)
// bucketed into the three fixed categories, each populated with its drivers
// and results. Results come back ordered by position with unranked entries
// last.
func (s *Store) FullState(ctx context.Context, roundID *string) (*models.FullState, error) {
	query := `
		SELECT id, type, race_class, label, category, status, is_endurance
		FROM sessions`
	args := []interface{}{}
	if roundID != nil {
		query += ` WHERE round_id = $1`
		args = append(args, *roundID)
	}
	query += ` ORDER BY sort_order, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	type sessionRow struct {
		id, kind, raceClass, label, category, status string
		endurance                                    bool
	}
	var sessions []sessionRow
	for rows.Next() {
		var r sessionRow
		if err := rows.Scan(&r.id, &r.kind, &r.raceClass, &r.label, &r.category, &r.status, &r.endurance); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	state := &models.FullState{
		Qualifying:    []models.QualifyingSession{},
		HeatsAndRace1: []models.RaceSession{},
		FinalAndRace2: []models.RaceSession{},
	}

	for _, row := range sessions {
		drivers, err := s.sessionDrivers(ctx, row.id)
		if err != nil {
			return nil, err
		}

		if models.SessionKind(row.kind) == models.KindQualifying {
			results, err := s.qualifyingResults(ctx, row.id)
			if err != nil {
				return nil, err
			}
			state.Qualifying = append(state.Qualifying, models.QualifyingSession{
				ID:        row.id,
				Kind:      models.SessionKind(row.kind),
				RaceClass: models.RaceClass(row.raceClass),
				Label:     row.label,
				Drivers:   drivers,
				Results:   results,
				Status:    models.SessionStatus(row.status),
			})
			continue
		}

		results, err := s.raceResults(ctx, row.id)
		if err != nil {
			return nil, err
		}
		session := models.RaceSession{
			ID:          row.id,
			Kind:        models.SessionKind(row.kind),
			RaceClass:   models.RaceClass(row.raceClass),
			Label:       row.label,
			Drivers:     drivers,
			Results:     results,
			Status:      models.SessionStatus(row.status),
			IsEndurance: row.endurance,
		}
		if models.Category(row.category) == models.CategoryHeatsAndRace1 {
			state.HeatsAndRace1 = append(state.HeatsAndRace1, session)
		} else {
			state.FinalAndRace2 = append(state.FinalAndRace2, session)
		}
	}
	return state, nil
}

func (s *Store) sessionDrivers(ctx context.Context, sessionID string) ([]models.Driver, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_team FROM drivers
		WHERE session_id = $1 ORDER BY sort_order, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	drivers := []models.Driver{}
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.IsTeam); err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	return drivers, nil
}

func (s *Store) qualifyingResults(ctx context.Context, sessionID string) ([]models.QualifyingResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT driver_id, driver_name, position, best_lap FROM results
		WHERE session_id = $1 ORDER BY position ASC NULLS LAST, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []models.QualifyingResult{}
	for rows.Next() {
		var r models.QualifyingResult
		var pos sql.NullInt32
		if err := rows.Scan(&r.DriverID, &r.DriverName, &pos, &r.BestLap); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Position = sqlutil.FromSqlInt32(pos)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

func (s *Store) raceResults(ctx context.Context, sessionID string) ([]models.RaceResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT driver_id, driver_name, position, best_lap, total_time, gap, lap_count, team_lap_count
		FROM results WHERE session_id = $1 ORDER BY position ASC NULLS LAST, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []models.RaceResult{}
	for rows.Next() {
		var r models.RaceResult
		var pos sql.NullInt32
		if err := rows.Scan(&r.DriverID, &r.DriverName, &pos, &r.BestLap, &r.TotalTime, &r.Gap, &r.LapCount, &r.TeamLapCount); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Position = sqlutil.FromSqlInt32(pos)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}
