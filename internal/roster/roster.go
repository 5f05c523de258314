// Package roster loads the optional YAML round template: the race classes in
// scope, the team drivers per class, and the sessions seeded into a newly
// created round.
package roster

import (
	"fmt"
	"os"

	"github.com/kpl-live/timing/internal/models"
	"gopkg.in/yaml.v3"
)

// Template describes what a freshly created round is seeded with.
type Template struct {
	TabLabels   *[3]string                    `yaml:"tab_labels"`
	Classes     []models.RaceClass            `yaml:"classes"`
	TeamDrivers map[models.RaceClass][]string `yaml:"team_drivers"`
	Sessions    []SessionSeed                 `yaml:"sessions"`
}

// SessionSeed is one session created as part of a round template.
type SessionSeed struct {
	Category  models.Category    `yaml:"category"`
	Kind      models.SessionKind `yaml:"type"`
	RaceClass models.RaceClass   `yaml:"class"`
	Label     string             `yaml:"label"`
}

// Load reads and validates a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster template: %w", err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse roster template: %w", err)
	}
	if err := tmpl.validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (t *Template) validate() error {
	for i, s := range t.Sessions {
		if !s.Category.Valid() {
			return fmt.Errorf("roster session %d: unknown category %q", i, s.Category)
		}
		if !s.Kind.Valid() {
			return fmt.Errorf("roster session %d: unknown session type %q", i, s.Kind)
		}
		if s.Label == "" {
			return fmt.Errorf("roster session %d: label is required", i)
		}
	}
	return nil
}

// SessionsForClasses returns the seed sessions whose class is in scope for a
// round with the given class list.
func (t *Template) SessionsForClasses(classes []models.RaceClass) []SessionSeed {
	inScope := make(map[models.RaceClass]bool, len(classes))
	for _, c := range classes {
		inScope[c] = true
	}

	var seeds []SessionSeed
	for _, s := range t.Sessions {
		if inScope[s.RaceClass] {
			seeds = append(seeds, s)
		}
	}
	return seeds
}
