// Package turn decides whose turn comes next and when a session is over.
package turn

import (
	"github.com/victornm/quizbox/internal/domain"
)

// Reason explains why a session finished.
type Reason string

const (
	ReasonThreshold  Reason = "threshold"
	ReasonCategories Reason = "categories"
	ReasonMaxCycles  Reason = "max_cycles"
	ReasonRequested  Reason = "requested"
	ReasonPlayers    Reason = "players"
	ReasonEnded      Reason = "ended"
)

// Rules are the termination conditions checked when a rotation completes.
// Zero values disable a condition.
type Rules struct {
	PointsThreshold int
	MaxCycles       int
}

// Decision is the result of advancing past a resolved round.
type Decision struct {
	Finish bool
	Reason Reason
	// Next is the roster index of the next turn holder when Finish is false.
	Next int
	// Wrapped is true when the rotation passed the end of the roster.
	Wrapped bool
}

// First returns the roster index of the first active player.
func First(players []domain.Player) (int, bool) {
	for i, p := range players {
		if p.Active {
			return i, true
		}
	}
	return 0, false
}

// Next returns the roster index of the first active player after current,
// going round the roster. Inactive players keep their index but are skipped.
func Next(players []domain.Player, current int) (next int, wrapped bool, ok bool) {
	n := len(players)
	for i := 1; i <= n; i++ {
		idx := current + i
		if players[idx%n].Active {
			return idx % n, idx >= n, true
		}
	}
	return 0, false, false
}

// Advance decides what follows the resolved round of s.
func Advance(s domain.Session, all []domain.Category, rules Rules) Decision {
	if s.ActiveCount() < 2 {
		return Decision{Finish: true, Reason: ReasonPlayers}
	}

	next, wrapped, ok := Next(s.Players, s.CurrentTurn)
	if !ok {
		return Decision{Finish: true, Reason: ReasonPlayers}
	}

	if wrapped {
		if reason, done := Terminate(s, s.Cycle+1, all, rules); done {
			return Decision{Finish: true, Reason: reason, Wrapped: true}
		}
	}

	return Decision{Next: next, Wrapped: wrapped}
}

// Terminate reports whether the session should finish after rotation number cycle.
func Terminate(s domain.Session, cycle int, all []domain.Category, rules Rules) (Reason, bool) {
	if s.EndRequested {
		return ReasonRequested, true
	}

	complete := 0
	active := 0
	for _, p := range s.Players {
		if !p.Active {
			continue
		}
		active++

		progress := s.Progress[p.Name]
		if rules.PointsThreshold > 0 && progress.Points >= rules.PointsThreshold {
			return ReasonThreshold, true
		}
		if progress.IsComplete(all) {
			complete++
		}
	}

	if active > 0 && complete == active {
		return ReasonCategories, true
	}

	if rules.MaxCycles > 0 && cycle >= rules.MaxCycles {
		return ReasonMaxCycles, true
	}

	return "", false
}
