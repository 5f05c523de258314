// Package models holds the domain types shared by the store and the
// broadcast hub: rounds, sessions, drivers and the two result kinds.
package models

// RaceClass identifies a competitor category within a round.
type RaceClass string

const (
	ClassWomen  RaceClass = "women"
	ClassJunior RaceClass = "junior"
	ClassProAm  RaceClass = "pro-am"
	ClassPro    RaceClass = "pro"
)

// DefaultClasses is the class list newly created rounds start with.
var DefaultClasses = []RaceClass{ClassJunior, ClassPro}

// SessionKind is the kind of a timed competition unit.
type SessionKind string

const (
	KindQualifying SessionKind = "qualifying"
	KindHeat       SessionKind = "heat"
	KindRace       SessionKind = "race"
	KindFinal      SessionKind = "final"
)

// Valid reports whether k is one of the known session kinds.
func (k SessionKind) Valid() bool {
	switch k {
	case KindQualifying, KindHeat, KindRace, KindFinal:
		return true
	}
	return false
}

// SessionStatus is derived from result completeness, never authored directly.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not-started"
	StatusInProgress SessionStatus = "in-progress"
	StatusCompleted  SessionStatus = "completed"
)

// Category is one of the three fixed buckets sessions are grouped into.
type Category string

const (
	CategoryQualifying    Category = "qualifying"
	CategoryHeatsAndRace1 Category = "heatsAndRace1"
	CategoryFinalAndRace2 Category = "finalAndRace2"
)

// Valid reports whether c is one of the three fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryQualifying, CategoryHeatsAndRace1, CategoryFinalAndRace2:
		return true
	}
	return false
}

// DefaultTabLabels are the tab labels newly created rounds start with.
var DefaultTabLabels = [3]string{"Qualifying", "Super Sprint", "Endurance"}

// Round is a competition weekend grouping sessions.
type Round struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	TabLabels [3]string   `json:"tabLabels"`
	Classes   []RaceClass `json:"classes"`
}

// RoundPatch carries the optional fields of a round update. Nil fields are
// left untouched.
type RoundPatch struct {
	Name      *string     `json:"name,omitempty"`
	TabLabels *[3]string  `json:"tabLabels,omitempty"`
	Classes   []RaceClass `json:"classes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RoundPatch) Empty() bool {
	return p.Name == nil && p.TabLabels == nil && p.Classes == nil
}

// Driver is a competitor entered into one specific session. The same person
// in two sessions is two independent Driver records.
type Driver struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsTeam bool   `json:"isTeam"`
}

// QualifyingResult is the outcome for one driver in a qualifying session.
type QualifyingResult struct {
	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`
	Position   *int   `json:"position"`
	BestLap    string `json:"bestLap"`
}

// RaceResult is the outcome for one driver in a heat, race or final. The lap
// counters are only meaningful for endurance sessions.
type RaceResult struct {
	DriverID     string `json:"driverId"`
	DriverName   string `json:"driverName"`
	Position     *int   `json:"position"`
	BestLap      string `json:"bestLap"`
	TotalTime    string `json:"totalTime"`
	Gap          string `json:"gap"`
	LapCount     int    `json:"lapCount"`
	TeamLapCount int    `json:"teamLapCount"`
}

// QualifyingSession is a qualifying block with its drivers and results.
type QualifyingSession struct {
	ID        string             `json:"id"`
	Kind      SessionKind        `json:"type"`
	RaceClass RaceClass          `json:"raceClass"`
	Label     string             `json:"label"`
	Drivers   []Driver           `json:"drivers"`
	Results   []QualifyingResult `json:"results"`
	Status    SessionStatus      `json:"status"`
}

// RaceSession is a heat, race or final with its drivers and results.
type RaceSession struct {
	ID          string        `json:"id"`
	Kind        SessionKind   `json:"type"`
	RaceClass   RaceClass     `json:"raceClass"`
	Label       string        `json:"label"`
	Drivers     []Driver      `json:"drivers"`
	Results     []RaceResult  `json:"results"`
	Status      SessionStatus `json:"status"`
	IsEndurance bool          `json:"isEndurance"`
}

// FullState is every session bucketed into the three fixed categories. It is
// the payload of the data:fullState event and the shape each client mirrors.
type FullState struct {
	Qualifying    []QualifyingSession `json:"qualifying"`
	HeatsAndRace1 []RaceSession       `json:"heatsAndRace1"`
	FinalAndRace2 []RaceSession       `json:"finalAndRace2"`
}

// SessionInfo is the lightweight session header the hub uses to validate and
// route mutations without loading drivers and results.
type SessionInfo struct {
	ID          string
	Kind        SessionKind
	Category    Category
	RaceClass   RaceClass
	Label       string
	Status      SessionStatus
	IsEndurance bool
	RoundID     *string
	DriverCount int
}
