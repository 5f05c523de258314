package hub

import (
	"encoding/json"

	"github.com/kpl-live/timing/internal/models"
)

// Envelope is the wire format in both directions: an event name plus an
// event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client → server events.
const (
	EventRoundList           = "round:list"
	EventRoundAdd            = "round:add"
	EventRoundUpdate         = "round:update"
	EventRoundDelete         = "round:delete"
	EventRequestFull         = "data:requestFull"
	EventRaceSave            = "race:save"
	EventQualifyingSave      = "qualifying:save"
	EventDriverAdd           = "driver:add"
	EventDriverRemove        = "driver:remove"
	EventSessionAdd          = "session:add"
	EventSessionUpdateLabel  = "session:updateLabel"
	EventSessionUpdateClass  = "session:updateClass"
	EventSessionSetEndurance = "session:setEndurance"
)

// Server → client events.
const (
	EventRoundListResult     = "round:listResult"
	EventFullState           = "data:fullState"
	EventRaceSaved           = "race:saved"
	EventQualifyingSaved     = "qualifying:saved"
	EventDriverAdded         = "driver:added"
	EventDriverRemoved       = "driver:removed"
	EventSessionLabelUpdated = "session:labelUpdated"
	EventConnectionCount     = "connection:count"
	EventError               = "error"
)

type RoundAddPayload struct {
	Name      string             `json:"name"`
	TabLabels *[3]string         `json:"tabLabels,omitempty"`
	Classes   []models.RaceClass `json:"classes,omitempty"`
}

type RoundUpdatePayload struct {
	RoundID   string             `json:"roundId"`
	Name      *string            `json:"name,omitempty"`
	TabLabels *[3]string         `json:"tabLabels,omitempty"`
	Classes   []models.RaceClass `json:"classes,omitempty"`
}

type RoundDeletePayload struct {
	RoundID string `json:"roundId"`
}

type RequestFullPayload struct {
	RoundID *string `json:"roundId,omitempty"`
}

type RaceSavePayload struct {
	RaceID  string               `json:"raceId"`
	Results []models.RaceResult  `json:"results"`
	Status  models.SessionStatus `json:"status"`
}

type QualifyingSavePayload struct {
	RaceID  string                    `json:"raceId"`
	Results []models.QualifyingResult `json:"results"`
	Status  models.SessionStatus      `json:"status"`
}

type DriverAddPayload struct {
	RaceID string `json:"raceId"`
	Name   string `json:"name"`
}

type DriverRemovePayload struct {
	RaceID   string `json:"raceId"`
	DriverID string `json:"driverId"`
}

type SessionAddPayload struct {
	Category  models.Category    `json:"category"`
	Kind      models.SessionKind `json:"type"`
	RaceClass models.RaceClass   `json:"raceClass"`
	Label     string             `json:"label"`
	RoundID   *string            `json:"roundId,omitempty"`
}

type SessionUpdateLabelPayload struct {
	RaceID string `json:"raceId"`
	Label  string `json:"label"`
}

type SessionUpdateClassPayload struct {
	RaceID    string           `json:"raceId"`
	RaceClass models.RaceClass `json:"raceClass"`
}

type SessionSetEndurancePayload struct {
	RaceID      string `json:"raceId"`
	IsEndurance bool   `json:"isEndurance"`
}

type ConnectionCountPayload struct {
	Count int `json:"count"`
}

type RaceSavedPayload struct {
	RaceID  string               `json:"raceId"`
	Results []models.RaceResult  `json:"results"`
	Status  models.SessionStatus `json:"status"`
}

type QualifyingSavedPayload struct {
	RaceID  string                    `json:"raceId"`
	Results []models.QualifyingResult `json:"results"`
	Status  models.SessionStatus      `json:"status"`
}

type DriverAddedPayload struct {
	RaceID string        `json:"raceId"`
	Driver models.Driver `json:"driver"`
}

type DriverRemovedPayload struct {
	RaceID   string `json:"raceId"`
	DriverID string `json:"driverId"`
}

type SessionLabelUpdatedPayload struct {
	RaceID string `json:"raceId"`
	Label  string `json:"label"`
}

// ErrorPayload is sent to the requesting client only; failed mutations are
// never broadcast.
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
