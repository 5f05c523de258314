package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kpl-live/timing/internal/models"
	"github.com/kpl-live/timing/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// ListRounds returns every round ordered by sort order then insertion order.
func (s *Store) ListRounds(ctx context.Context) ([]models.Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tab1_label, tab2_label, tab3_label, classes
		FROM rounds ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	rounds := []models.Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

// CreateRound creates a round with the next sort order, defaulting the tab
// labels and class list when omitted, and seeds its sessions and team
// drivers from the roster template when one is configured.
func (s *Store) CreateRound(ctx context.Context, name string, tabLabels *[3]string, classes []models.RaceClass) (*models.Round, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: round name is required", ErrInvalid)
	}

	labels := models.DefaultTabLabels
	if tabLabels != nil {
		labels = *tabLabels
	} else if s.template != nil && s.template.TabLabels != nil {
		labels = *s.template.TabLabels
	}
	if classes == nil {
		if s.template != nil && s.template.Classes != nil {
			classes = s.template.Classes
		} else {
			classes = models.DefaultClasses
		}
	}

	classesJSON, err := json.Marshal(classes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode class list: %w", err)
	}

	round := &models.Round{
		ID:        s.newID("round"),
		Name:      name,
		TabLabels: labels,
		Classes:   classes,
	}

	err = sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rounds (id, name, sort_order, tab1_label, tab2_label, tab3_label, classes)
			VALUES ($1, $2, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM rounds), $3, $4, $5, $6)`,
			round.ID, round.Name, labels[0], labels[1], labels[2], classesJSON); err != nil {
			return fmt.Errorf("failed to insert round: %w", err)
		}
		return s.seedRound(ctx, tx, round)
	})
	if err != nil {
		return nil, err
	}
	return round, nil
}

// seedRound creates the template sessions (and their roster drivers) for a
// newly inserted round. No template means an empty round.
func (s *Store) seedRound(ctx context.Context, tx *sql.Tx, round *models.Round) error {
	if s.template == nil {
		return nil
	}

	for _, seed := range s.template.SessionsForClasses(round.Classes) {
		sessionID := s.newID("session")
		endurance := seed.Category == models.CategoryFinalAndRace2
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, type, race_class, label, category, status, sort_order, round_id, is_endurance)
			VALUES ($1, $2, $3, $4, $5, $6,
				(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM sessions WHERE category = $5), $7, $8)`,
			sessionID, string(seed.Kind), string(seed.RaceClass), seed.Label,
			string(seed.Category), string(models.StatusNotStarted), round.ID, endurance); err != nil {
			return fmt.Errorf("failed to seed session %q: %w", seed.Label, err)
		}

		for i, driverName := range s.template.TeamDrivers[seed.RaceClass] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO drivers (id, session_id, name, sort_order, is_team)
				VALUES ($1, $2, $3, $4, TRUE)`,
				s.newID("driver"), sessionID, driverName, i); err != nil {
				return fmt.Errorf("failed to seed driver %q: %w", driverName, err)
			}
		}
	}
	return nil
}

// UpdateRound patches only the supplied fields. An empty patch is a no-op.
func (s *Store) UpdateRound(ctx context.Context, id string, patch models.RoundPatch) error {
	if patch.Empty() {
		return nil
	}

	sets := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Name != nil {
		sets = append(sets, "name = "+arg(*patch.Name))
	}
	if patch.TabLabels != nil {
		sets = append(sets, "tab1_label = "+arg(patch.TabLabels[0]))
		sets = append(sets, "tab2_label = "+arg(patch.TabLabels[1]))
		sets = append(sets, "tab3_label = "+arg(patch.TabLabels[2]))
	}
	if patch.Classes != nil {
		classesJSON, err := json.Marshal(patch.Classes)
		if err != nil {
			return fmt.Errorf("failed to encode class list: %w", err)
		}
		sets = append(sets, "classes = "+arg(classesJSON))
	}

	query := fmt.Sprintf(`UPDATE rounds SET %s WHERE id = %s`, strings.Join(sets, ", "), arg(id))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}
	return requireRow(res, "round", id)
}

// DeleteRound deletes a round; the cascade removes its sessions, drivers and
// results.
func (s *Store) DeleteRound(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rounds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete round: %w", err)
	}
	return requireRow(res, "round", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	var r models.Round
	var classes pqtype.NullRawMessage
	if err := row.Scan(&r.ID, &r.Name, &r.TabLabels[0], &r.TabLabels[1], &r.TabLabels[2], &classes); err != nil {
		return nil, fmt.Errorf("failed to scan round: %w", err)
	}

	r.Classes = models.DefaultClasses
	if classes.Valid {
		var parsed []models.RaceClass
		if err := json.Unmarshal(classes.RawMessage, &parsed); err == nil {
			r.Classes = parsed
		}
	}
	return &r, nil
}

// requireRow maps a zero-row mutation onto ErrNotFound.
func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
	}
	return nil
}
