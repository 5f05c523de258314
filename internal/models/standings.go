package models

import (
	"sort"

	"github.com/kpl-live/timing/internal/laptime"
)

// RankQualifying canonicalizes best laps and assigns positions by ascending
// lap time. Only drivers with a positive parsed time are ranked; everyone
// else gets a nil position, not a trailing rank. Ties keep submission order.
func RankQualifying(results []QualifyingResult) []QualifyingResult {
	ranked := make([]QualifyingResult, len(results))
	copy(ranked, results)

	type timed struct {
		idx int
		ms  int
	}
	var order []timed
	for i := range ranked {
		ranked[i].BestLap = laptime.Format(ranked[i].BestLap)
		ranked[i].Position = nil
		if ms := laptime.ToMs(ranked[i].BestLap); ms > 0 {
			order = append(order, timed{idx: i, ms: ms})
		}
	}

	sort.SliceStable(order, func(a, b int) bool { return order[a].ms < order[b].ms })
	for pos, t := range order {
		p := pos + 1
		ranked[t.idx].Position = &p
	}
	return ranked
}

// RankRace canonicalizes times and gaps and assigns positions purely by the
// submitted card order: the operator's ordering is the ranking. The leader's
// gap is always the NoGap sentinel regardless of input.
func RankRace(results []RaceResult) []RaceResult {
	ranked := make([]RaceResult, len(results))
	copy(ranked, results)

	for i := range ranked {
		p := i + 1
		ranked[i].Position = &p
		ranked[i].BestLap = laptime.Format(ranked[i].BestLap)
		ranked[i].TotalTime = laptime.Format(ranked[i].TotalTime)
		if p == 1 {
			ranked[i].Gap = laptime.NoGap
		} else {
			ranked[i].Gap = laptime.FormatGap(ranked[i].Gap)
		}
	}
	return ranked
}

// QualifyingStatus derives a session status from how many of its drivers have
// a best lap entered.
func QualifyingStatus(driverCount int, results []QualifyingResult) SessionStatus {
	entered := 0
	for _, r := range results {
		if r.BestLap != "" {
			entered++
		}
	}
	switch {
	case entered == 0:
		return StatusNotStarted
	case driverCount > 0 && entered >= driverCount:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// RaceStatus derives a session status from result completeness. A race is
// complete when every driver has a result and every non-leader has a gap;
// the leader itself never carries one.
func RaceStatus(driverCount int, results []RaceResult) SessionStatus {
	if driverCount == 0 || len(results) == 0 {
		return StatusNotStarted
	}

	entered := 0
	complete := len(results) >= driverCount
	for _, r := range results {
		leader := r.Position != nil && *r.Position == 1
		hasGap := r.Gap != "" && r.Gap != laptime.NoGap
		if hasGap || r.BestLap != "" || r.TotalTime != "" || r.LapCount > 0 {
			entered++
		}
		if !leader && !hasGap {
			complete = false
		}
	}

	switch {
	case entered == 0:
		return StatusNotStarted
	case complete:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}
