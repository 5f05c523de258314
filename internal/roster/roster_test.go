package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kpl-live/timing/internal/models"
)

const sampleTemplate = `
tab_labels: ["Qualifying", "Sprint", "Endurance"]
classes: [junior, pro]
team_drivers:
  pro:
    - Team Redline
    - Team Vortex
sessions:
  - category: qualifying
    type: qualifying
    class: junior
    label: Junior Qualifying
  - category: heatsAndRace1
    type: heat
    class: pro
    label: Pro Heat 1
  - category: finalAndRace2
    type: final
    class: women
    label: Women Final
`

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tmpl, err := Load(writeTemplate(t, sampleTemplate))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if tmpl.TabLabels == nil || tmpl.TabLabels[1] != "Sprint" {
		t.Errorf("tab labels = %v, want second label %q", tmpl.TabLabels, "Sprint")
	}
	if len(tmpl.Classes) != 2 || tmpl.Classes[0] != models.ClassJunior {
		t.Errorf("classes = %v", tmpl.Classes)
	}
	if got := len(tmpl.TeamDrivers[models.ClassPro]); got != 2 {
		t.Errorf("pro team drivers = %d, want 2", got)
	}
	if len(tmpl.Sessions) != 3 {
		t.Fatalf("sessions = %d, want 3", len(tmpl.Sessions))
	}
	if tmpl.Sessions[1].Kind != models.KindHeat || tmpl.Sessions[1].Category != models.CategoryHeatsAndRace1 {
		t.Errorf("unexpected second seed: %+v", tmpl.Sessions[1])
	}
}

func TestLoadRejectsBadSeeds(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown category", "sessions:\n  - category: warmup\n    type: heat\n    class: pro\n    label: X\n"},
		{"unknown type", "sessions:\n  - category: qualifying\n    type: parade\n    class: pro\n    label: X\n"},
		{"missing label", "sessions:\n  - category: qualifying\n    type: qualifying\n    class: pro\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemplate(t, tt.content)); err == nil {
				t.Error("Load accepted an invalid template")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestSessionsForClasses(t *testing.T) {
	tmpl, err := Load(writeTemplate(t, sampleTemplate))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	seeds := tmpl.SessionsForClasses([]models.RaceClass{models.ClassJunior, models.ClassWomen})
	if len(seeds) != 2 {
		t.Fatalf("seeds = %d, want 2", len(seeds))
	}
	for _, s := range seeds {
		if s.RaceClass == models.ClassPro {
			t.Errorf("out-of-scope class seeded: %+v", s)
		}
	}
}
