package domain

import (
	"slices"
	"strings"
	"time"
)

type State string

const (
	StateCreated    State = "created"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
)

// Category is one of the subject categories configured for the game.
type Category string

// DefaultCategories is used when the configuration does not name any.
var DefaultCategories = []Category{"general", "science", "history", "geography", "sports", "arts"}

type AnswerType string

const (
	AnswerSingleChoice AnswerType = "single_choice"
	AnswerTrueFalse    AnswerType = "true_false"
	AnswerFreeText     AnswerType = "free_text"
	AnswerMultiPart    AnswerType = "multi_part"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Question struct {
	QuestionID   string
	Category     Category
	QuestionText string
	Type         AnswerType
	Difficulty   Difficulty
	Options      []Option
	// Answers holds the canonical answer(s). Single choice and true/false use the
	// first entry, multi part needs all of them, free text accepts any of them.
	Answers []string
}

type Option struct {
	OptionID   string
	OptionText string
}

// Answer is what a player submitted. Multi part answers carry one value per part.
type Answer []string

// NameKey normalizes a player name for case-insensitive comparison.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type Player struct {
	Name     string
	JoinedAt time.Time
	Active   bool
}

// CategoryProgress tracks a single player's completed categories and points.
type CategoryProgress struct {
	Completed map[Category]bool
	Points    int
}

// IsComplete reports whether every category in all has been completed.
func (p CategoryProgress) IsComplete(all []Category) bool {
	for _, c := range all {
		if !p.Completed[c] {
			return false
		}
	}
	return len(all) > 0
}

func (p CategoryProgress) CompletedCount() int {
	return len(p.Completed)
}

// CompletedSet returns the completed categories in the order of all.
func (p CategoryProgress) CompletedSet(all []Category) []Category {
	out := make([]Category, 0, len(p.Completed))
	for _, c := range all {
		if p.Completed[c] {
			out = append(out, c)
		}
	}
	return out
}

type Outcome struct {
	Correct  bool
	Points   int
	TimedOut bool
	Answer   Answer
	Elapsed  time.Duration
}

// Round is one player answering one question in one category.
type Round struct {
	Number      int
	PlayerIndex int
	Player      string
	Category    Category
	Question    Question
	StartedAt   time.Time
	Duration    time.Duration
	// Reshuffled is set when the player had completed every category and the
	// category was picked from the full set again.
	Reshuffled bool
	Resolved   bool
	Outcome    *Outcome
}

func (r *Round) clone() *Round {
	if r == nil {
		return nil
	}

	c := *r
	c.Question.Options = slices.Clone(r.Question.Options)
	c.Question.Answers = slices.Clone(r.Question.Answers)
	if r.Outcome != nil {
		o := *r.Outcome
		o.Answer = slices.Clone(r.Outcome.Answer)
		c.Outcome = &o
	}
	return &c
}

type RankEntry struct {
	Position  int
	Name      string
	Points    int
	Completed int
	JoinOrder int
}

// Session is an immutable snapshot of a quiz session. Use Clone before mutating.
type Session struct {
	SessionID   string
	State       State
	Players     []Player
	CurrentTurn int
	Round       *Round
	// Previous is the most recently resolved round.
	Previous     *Round
	Progress     map[string]CategoryProgress
	Cycle        int
	RoundsPlayed int
	EndRequested bool
	Version      int
	Ranking      []RankEntry
	FinishReason string
	CreatedAt    time.Time
	FinishedAt   *time.Time
}

// Points returns the player's total points.
func (s Session) Points(name string) int {
	return s.Progress[name].Points
}

// PlayerIndex returns the roster index of the active player with the given name,
// matching case-insensitively, or -1.
func (s Session) PlayerIndex(name string) int {
	for i, p := range s.Players {
		if p.Active && NameKey(p.Name) == NameKey(name) {
			return i
		}
	}
	return -1
}

func (s Session) ActiveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Active {
			n++
		}
	}
	return n
}

// TurnHolder returns the player whose turn it is, if the session is in progress.
func (s Session) TurnHolder() (Player, bool) {
	if s.State != StateInProgress || s.CurrentTurn < 0 || s.CurrentTurn >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentTurn], true
}

// Clone returns a deep copy of the snapshot.
func (s Session) Clone() Session {
	c := s
	c.Players = slices.Clone(s.Players)
	c.Ranking = slices.Clone(s.Ranking)

	c.Round = s.Round.clone()
	c.Previous = s.Previous.clone()

	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}

	c.Progress = make(map[string]CategoryProgress, len(s.Progress))
	for name, p := range s.Progress {
		done := make(map[Category]bool, len(p.Completed))
		for k, v := range p.Completed {
			done[k] = v
		}
		c.Progress[name] = CategoryProgress{Completed: done, Points: p.Points}
	}

	return c
}

// Leaderboard represents a list of users and their scores.
// The list is sorted by score in descending order. An empty SessionID means the
// all-time leaderboard across sessions.
type Leaderboard struct {
	SessionID string
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	Username string
	Score    float64
}
