package session

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizbox/internal/category"
	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/score"
	"github.com/victornm/quizbox/internal/turn"
)

const DefaultMaxNameLength = 24

// JoinPolicy controls whether players may join a session that already started.
type JoinPolicy string

const (
	// JoinBetweenRounds allows joining an in-progress session only while no
	// round is open.
	JoinBetweenRounds JoinPolicy = "between_rounds"
	JoinAlways        JoinPolicy = "always"
	JoinNever         JoinPolicy = "never"
)

// QuestionProvider hands out a question for a category without blocking. It
// fails with a loading error when none is available yet.
type QuestionProvider interface {
	Question(c domain.Category) (domain.Question, error)
}

// DurationPolicy decides how long a player has to answer a question.
type DurationPolicy interface {
	Duration(q domain.Question) time.Duration
}

type MachineConfig struct {
	Categories    []domain.Category
	JoinPolicy    JoinPolicy
	MaxNameLength int
	Rules         turn.Rules

	Questions QuestionProvider
	Durations DurationPolicy
	Scorer    *score.Engine
	Rotator   *category.Rotator
	Clock     clockwork.Clock
}

// Machine applies session operations. Every operation takes a snapshot and
// returns a new one; the input is never modified. A Machine keeps no session
// state, so one Machine serves any number of sessions.
type Machine struct {
	categories []domain.Category
	policy     JoinPolicy
	maxName    int
	rules      turn.Rules

	questions QuestionProvider
	durations DurationPolicy
	scorer    *score.Engine
	rotator   *category.Rotator
	clock     clockwork.Clock
}

func NewMachine(c MachineConfig) (*Machine, error) {
	if c.Questions == nil {
		return nil, fmt.Errorf("session: question provider is required")
	}
	if c.Durations == nil {
		return nil, fmt.Errorf("session: duration policy is required")
	}
	if c.Scorer == nil {
		return nil, fmt.Errorf("session: scorer is required")
	}
	if len(c.Categories) == 0 {
		c.Categories = domain.DefaultCategories
	}
	if c.JoinPolicy == "" {
		c.JoinPolicy = JoinBetweenRounds
	}
	switch c.JoinPolicy {
	case JoinBetweenRounds, JoinAlways, JoinNever:
	default:
		return nil, fmt.Errorf("session: unknown join policy %q", c.JoinPolicy)
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = DefaultMaxNameLength
	}
	if c.Rotator == nil {
		c.Rotator = category.NewRotator(nil)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	return &Machine{
		categories: c.Categories,
		policy:     c.JoinPolicy,
		maxName:    c.MaxNameLength,
		rules:      c.Rules,
		questions:  c.Questions,
		durations:  c.Durations,
		scorer:     c.Scorer,
		rotator:    c.Rotator,
		clock:      c.Clock,
	}, nil
}

func (m *Machine) Categories() []domain.Category {
	return m.categories
}

// Create returns a new session with an empty roster.
func (m *Machine) Create() domain.Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return domain.Session{
		SessionID: id.String(),
		State:     domain.StateCreated,
		Progress:  make(map[string]domain.CategoryProgress),
		CreatedAt: m.clock.Now(),
	}
}

// Join adds a player to the roster. A player who quit earlier may come back
// under the same name and keeps their points.
func (m *Machine) Join(s domain.Session, name string) (domain.Session, error) {
	if err := m.canJoin(s); err != nil {
		return s, err
	}

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return s, errors.InvalidArgument("player name must not be empty")
	case utf8.RuneCountInString(name) > m.maxName:
		return s, errors.InvalidArgument("player name must be at most %d characters", m.maxName)
	case s.PlayerIndex(name) >= 0:
		return s, errors.InvalidArgument("player name %q is already taken", name)
	}

	n := s.Clone()
	if i := inactiveIndex(n, name); i >= 0 {
		n.Players[i].Active = true
	} else {
		n.Players = append(n.Players, domain.Player{
			Name:     name,
			JoinedAt: m.clock.Now(),
			Active:   true,
		})
		n.Progress[name] = domain.CategoryProgress{Completed: make(map[domain.Category]bool)}
	}

	n.Version++
	return n, nil
}

func (m *Machine) canJoin(s domain.Session) error {
	switch s.State {
	case domain.StateCreated:
		return nil
	case domain.StateFinished:
		return errors.New(errors.KindHotJoin, errors.WithMessagef("session %s is finished", s.SessionID))
	}

	switch m.policy {
	case JoinAlways:
		return nil
	case JoinBetweenRounds:
		if s.Round == nil || s.Round.Resolved {
			return nil
		}
		return errors.New(errors.KindHotJoin, errors.WithMessagef("round %d is in progress, join between rounds", s.Round.Number))
	default:
		return errors.New(errors.KindHotJoin, errors.WithMessagef("session %s does not accept players after start", s.SessionID))
	}
}

func inactiveIndex(s domain.Session, name string) int {
	for i, p := range s.Players {
		if !p.Active && domain.NameKey(p.Name) == domain.NameKey(name) {
			return i
		}
	}
	return -1
}

// Start opens the first round for the first active player.
func (m *Machine) Start(s domain.Session) (domain.Session, error) {
	if s.State != domain.StateCreated {
		return s, errors.New(errors.KindGameAlreadyInProgress, errors.WithMessagef("session %s is %s", s.SessionID, s.State))
	}
	if s.ActiveCount() < 2 {
		return s, errors.New(errors.KindNoPlayer, errors.WithMessagef("session %s has %d active players, at least 2 are required", s.SessionID, s.ActiveCount()))
	}

	first, _ := turn.First(s.Players)

	n := s.Clone()
	n.State = domain.StateInProgress
	if err := m.openRound(&n, first); err != nil {
		return s, err
	}

	n.Version++
	return n, nil
}

// SubmitAnswer scores the turn holder's answer, resolves the round and moves
// the turn on.
func (m *Machine) SubmitAnswer(s domain.Session, name string, answer domain.Answer) (domain.Session, error) {
	if s.State != domain.StateInProgress {
		return s, errors.New(errors.KindNoGameInProgress, errors.WithMessagef("session %s is %s", s.SessionID, s.State))
	}
	if s.Round == nil || s.Round.Resolved {
		return s, errors.New(errors.KindOutOfOrder, errors.WithMessagef("no open round to answer"))
	}
	if idx := s.PlayerIndex(name); idx < 0 || idx != s.CurrentTurn {
		return s, errors.New(errors.KindOutOfOrder, errors.WithMessagef("it is not %s's turn", strings.TrimSpace(name)))
	}

	r := s.Round
	elapsed := m.clock.Since(r.StartedAt)
	res := m.scorer.Score(r.Question, answer, elapsed, r.Duration)

	n := s.Clone()
	m.resolve(&n, domain.Outcome{
		Correct: res.Correct,
		Points:  res.Points,
		Answer:  append(domain.Answer(nil), answer...),
		Elapsed: elapsed,
	})
	m.advance(&n)

	n.Version++
	return n, nil
}

// OnTimerExpired resolves round roundNumber as a miss. Signals for a round that
// is not open any more are ignored and s is returned as is.
func (m *Machine) OnTimerExpired(s domain.Session, roundNumber int) domain.Session {
	if s.State != domain.StateInProgress || s.Round == nil || s.Round.Number != roundNumber || s.Round.Resolved {
		return s
	}

	n := s.Clone()
	m.resolve(&n, domain.Outcome{TimedOut: true, Elapsed: s.Round.Duration})
	m.advance(&n)

	n.Version++
	return n
}

// End finishes the session immediately and freezes the scores.
func (m *Machine) End(s domain.Session) domain.Session {
	if s.State == domain.StateFinished {
		return s
	}

	n := s.Clone()
	m.finish(&n, turn.ReasonEnded)

	n.Version++
	return n
}

// RequestEnd finishes the session once the current rotation is complete.
func (m *Machine) RequestEnd(s domain.Session) (domain.Session, error) {
	if s.State != domain.StateInProgress {
		return s, errors.New(errors.KindNoGameInProgress, errors.WithMessagef("session %s is %s", s.SessionID, s.State))
	}
	if s.EndRequested {
		return s, nil
	}

	n := s.Clone()
	n.EndRequested = true

	n.Version++
	return n, nil
}

// Quit marks a player inactive. A quitting turn holder forfeits the open round.
func (m *Machine) Quit(s domain.Session, name string) (domain.Session, error) {
	if s.State == domain.StateFinished {
		return s, errors.New(errors.KindNoGameInProgress, errors.WithMessagef("session %s is finished", s.SessionID))
	}

	idx := s.PlayerIndex(name)
	if idx < 0 {
		return s, errors.InvalidArgument("no active player named %q", strings.TrimSpace(name))
	}

	n := s.Clone()
	n.Players[idx].Active = false

	if n.State == domain.StateInProgress {
		switch {
		case idx == n.CurrentTurn && n.Round != nil && !n.Round.Resolved:
			m.resolve(&n, domain.Outcome{Elapsed: m.clock.Since(n.Round.StartedAt)})
			m.advance(&n)
		case idx == n.CurrentTurn && n.Round == nil:
			m.advance(&n)
		case n.ActiveCount() < 2:
			m.finish(&n, turn.ReasonPlayers)
		}
	}

	n.Version++
	return n, nil
}

// Resume opens the round that could not open earlier because its question was
// not available.
func (m *Machine) Resume(s domain.Session) (domain.Session, error) {
	if s.State != domain.StateInProgress {
		return s, errors.New(errors.KindNoGameInProgress, errors.WithMessagef("session %s is %s", s.SessionID, s.State))
	}
	if s.Round != nil && !s.Round.Resolved {
		return s, errors.New(errors.KindOutOfOrder, errors.WithMessagef("round %d is already open", s.Round.Number))
	}

	n := s.Clone()
	if err := m.openRound(&n, n.CurrentTurn); err != nil {
		return s, err
	}

	n.Version++
	return n, nil
}

// resolve closes the open round of n with the outcome. It must be called at most
// once per round.
func (m *Machine) resolve(n *domain.Session, o domain.Outcome) {
	r := n.Round
	r.Resolved = true
	r.Outcome = &o

	p := n.Progress[r.Player]
	p.Points += o.Points
	if o.Correct {
		p.Completed[r.Category] = true
	}
	n.Progress[r.Player] = p

	n.RoundsPlayed++
	n.Previous = r
}

// advance moves the turn on after a resolved round, finishing the session when
// the rotation is over and a termination rule holds. When the next question is
// not available the turn still moves on, but no round is open until Resume.
func (m *Machine) advance(n *domain.Session) {
	d := turn.Advance(*n, m.categories, m.rules)
	if d.Wrapped {
		n.Cycle++
	}

	if d.Finish {
		m.finish(n, d.Reason)
		return
	}

	if err := m.openRound(n, d.Next); err != nil {
		n.CurrentTurn = d.Next
		n.Round = nil
	}
}

func (m *Machine) openRound(n *domain.Session, idx int) error {
	player := n.Players[idx]
	progress := n.Progress[player.Name]

	c, reshuffled := m.rotator.Next(progress.Completed, m.categories)

	q, err := m.questions.Question(c)
	if err != nil {
		if stderrors.Is(err, errors.ErrLoading) {
			return err
		}
		return errors.New(errors.KindLoading, errors.WithCause(err),
			errors.WithMessagef("question for category %q is not available", c),
		)
	}

	n.CurrentTurn = idx
	n.Round = &domain.Round{
		Number:      n.RoundsPlayed + 1,
		PlayerIndex: idx,
		Player:      player.Name,
		Category:    c,
		Question:    q,
		StartedAt:   m.clock.Now(),
		Duration:    m.durations.Duration(q),
		Reshuffled:  reshuffled,
	}

	return nil
}

func (m *Machine) finish(n *domain.Session, reason turn.Reason) {
	now := m.clock.Now()

	n.State = domain.StateFinished
	n.FinishReason = string(reason)
	n.FinishedAt = &now
	n.Ranking = turn.Rank(*n)
}
