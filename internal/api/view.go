package api

import (
	"time"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/turn"
)

type (
	Session struct {
		SessionID    string     `json:"session_id"`
		State        string     `json:"state"`
		Players      []Player   `json:"players"`
		TurnHolder   string     `json:"turn_holder,omitempty"`
		Round        *Round     `json:"round,omitempty"`
		Previous     *Round     `json:"previous,omitempty"`
		Cycle        int        `json:"cycle"`
		RoundsPlayed int        `json:"rounds_played"`
		EndRequested bool       `json:"end_requested"`
		Version      int        `json:"version"`
		Ranking      []Rank     `json:"ranking,omitempty"`
		FinishReason string     `json:"finish_reason,omitempty"`
		CreatedAt    time.Time  `json:"created_at"`
		FinishedAt   *time.Time `json:"finished_at,omitempty"`
	}

	Player struct {
		Name      string    `json:"name"`
		Active    bool      `json:"active"`
		Points    int       `json:"points"`
		Completed []string  `json:"completed"`
		JoinedAt  time.Time `json:"joined_at"`
	}

	Round struct {
		Number     int       `json:"number"`
		Player     string    `json:"player"`
		Category   string    `json:"category"`
		Question   Question  `json:"question"`
		StartedAt  time.Time `json:"started_at"`
		DeadlineAt time.Time `json:"deadline_at"`
		DurationMS int64     `json:"duration_ms"`
		Reshuffled bool      `json:"reshuffled,omitempty"`
		Resolved   bool      `json:"resolved"`
		Outcome    *Outcome  `json:"outcome,omitempty"`
	}

	Question struct {
		QuestionID string   `json:"question_id"`
		Text       string   `json:"text"`
		Type       string   `json:"type"`
		Difficulty string   `json:"difficulty"`
		Options    []Option `json:"options,omitempty"`
		// Answers are only shown once the round is resolved.
		Answers []string `json:"answers,omitempty"`
	}

	Option struct {
		OptionID string `json:"option_id"`
		Text     string `json:"text"`
	}

	Outcome struct {
		Correct   bool     `json:"correct"`
		Points    int      `json:"points"`
		TimedOut  bool     `json:"timed_out"`
		Answer    []string `json:"answer,omitempty"`
		ElapsedMS int64    `json:"elapsed_ms"`
	}

	Rank struct {
		Position  int    `json:"position"`
		Name      string `json:"name"`
		Points    int    `json:"points"`
		Completed int    `json:"completed"`
	}
)

func newSession(s domain.Session, all []domain.Category) Session {
	v := Session{
		SessionID:    s.SessionID,
		State:        string(s.State),
		Players:      make([]Player, 0, len(s.Players)),
		Round:        newRound(s.Round),
		Previous:     newRound(s.Previous),
		Cycle:        s.Cycle,
		RoundsPlayed: s.RoundsPlayed,
		EndRequested: s.EndRequested,
		Version:      s.Version,
		Ranking:      newRanking(s.Ranking),
		FinishReason: s.FinishReason,
		CreatedAt:    s.CreatedAt,
		FinishedAt:   s.FinishedAt,
	}

	if p, ok := s.TurnHolder(); ok {
		v.TurnHolder = p.Name
	}

	for _, p := range s.Players {
		progress := s.Progress[p.Name]

		completed := make([]string, 0, len(progress.Completed))
		for _, c := range progress.CompletedSet(all) {
			completed = append(completed, string(c))
		}

		v.Players = append(v.Players, Player{
			Name:      p.Name,
			Active:    p.Active,
			Points:    progress.Points,
			Completed: completed,
			JoinedAt:  p.JoinedAt,
		})
	}

	return v
}

func newRound(r *domain.Round) *Round {
	if r == nil {
		return nil
	}

	v := &Round{
		Number:   r.Number,
		Player:   r.Player,
		Category: string(r.Category),
		Question: Question{
			QuestionID: r.Question.QuestionID,
			Text:       r.Question.QuestionText,
			Type:       string(r.Question.Type),
			Difficulty: string(r.Question.Difficulty),
		},
		StartedAt:  r.StartedAt,
		DeadlineAt: r.StartedAt.Add(r.Duration),
		DurationMS: r.Duration.Milliseconds(),
		Reshuffled: r.Reshuffled,
		Resolved:   r.Resolved,
	}

	for _, o := range r.Question.Options {
		v.Question.Options = append(v.Question.Options, Option{OptionID: o.OptionID, Text: o.OptionText})
	}

	if r.Resolved {
		v.Question.Answers = r.Question.Answers
	}

	if o := r.Outcome; o != nil {
		v.Outcome = &Outcome{
			Correct:   o.Correct,
			Points:    o.Points,
			TimedOut:  o.TimedOut,
			Answer:    o.Answer,
			ElapsedMS: o.Elapsed.Milliseconds(),
		}
	}

	return v
}

func newRanking(entries []domain.RankEntry) []Rank {
	if len(entries) == 0 {
		return nil
	}

	out := make([]Rank, 0, len(entries))
	for _, e := range entries {
		out = append(out, Rank{
			Position:  e.Position,
			Name:      e.Name,
			Points:    e.Points,
			Completed: e.Completed,
		})
	}
	return out
}

// ranking is the final ranking of a finished session, or the standing so far.
func ranking(s domain.Session) []Rank {
	if s.State == domain.StateFinished {
		return newRanking(s.Ranking)
	}
	return newRanking(turn.Rank(s))
}
