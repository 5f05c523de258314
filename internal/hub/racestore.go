package hub

import (
	"context"

	"github.com/kpl-live/timing/internal/models"
)

// RaceStore is the persistent store the hub mediates every mutation through.
// Implemented by internal/store; faked in tests.
type RaceStore interface {
	ListRounds(ctx context.Context) ([]models.Round, error)
	CreateRound(ctx context.Context, name string, tabLabels *[3]string, classes []models.RaceClass) (*models.Round, error)
	UpdateRound(ctx context.Context, id string, patch models.RoundPatch) error
	DeleteRound(ctx context.Context, id string) error

	FullState(ctx context.Context, roundID *string) (*models.FullState, error)

	CreateSession(ctx context.Context, category models.Category, kind models.SessionKind, raceClass models.RaceClass, label string, roundID *string) (string, error)
	GetSession(ctx context.Context, id string) (*models.SessionInfo, error)
	UpdateSessionLabel(ctx context.Context, id, label string) error
	UpdateSessionClass(ctx context.Context, id string, raceClass models.RaceClass) error
	SetSessionEndurance(ctx context.Context, id string, endurance bool) error

	AddDriver(ctx context.Context, sessionID, name string) (*models.Driver, error)
	RemoveDriver(ctx context.Context, sessionID, driverID string) error

	SaveQualifyingResults(ctx context.Context, sessionID string, results []models.QualifyingResult, status models.SessionStatus) error
	SaveRaceResults(ctx context.Context, sessionID string, results []models.RaceResult, status models.SessionStatus) error
}
