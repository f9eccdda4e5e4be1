package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/event"
	"github.com/victornm/quizbox/internal/telemetry"
)

type Config struct {
	Machine  *Machine
	EventBus *event.Bus
	Clock    clockwork.Clock
}

// Service keeps one actor per live session.
type Service struct {
	m     *Machine
	eb    *event.Bus
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	actors map[string]*Actor
}

func NewService(c Config) (*Service, error) {
	if c.Machine == nil {
		return nil, fmt.Errorf("session: machine is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		m:      c.Machine,
		eb:     c.EventBus,
		clock:  c.Clock,
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*Actor),
	}, nil
}

// Categories returns the categories every session plays.
func (s *Service) Categories() []domain.Category {
	return s.m.Categories()
}

// CreateSessionRequest represents a request to create a new quiz session.
type CreateSessionRequest struct {
	// Players are joined in the given order.
	Players []string
}

// CreateSession creates a new session in the created state.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (domain.Session, error) {
	ss := s.m.Create()

	var err error
	for _, name := range req.Players {
		ss, err = s.m.Join(ss, name)
		if err != nil {
			return domain.Session{}, err
		}
	}

	a := newActor(s.ctx, s.m, s.eb, s.clock, ss)

	s.mu.Lock()
	s.actors[ss.SessionID] = a
	n := len(s.actors)
	s.mu.Unlock()

	telemetry.SessionsLive(n)
	slog.InfoContext(ctx, "session: created", "session_id", ss.SessionID, "players", len(ss.Players))

	return ss.Clone(), nil
}

// Actor returns the actor owning the session.
func (s *Service) Actor(sessionID string) (*Actor, error) {
	s.mu.RLock()
	a, ok := s.actors[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.KindNotFound, errors.WithMessagef("session %s not found", sessionID))
	}
	return a, nil
}

type GetSessionRequest struct {
	SessionID string
}

func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.Snapshot(ctx)
}

type JoinRequest struct {
	SessionID string
	Username  string
}

func (s *Service) Join(ctx context.Context, req JoinRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.Join(ctx, req.Username)
}

type StartRequest struct {
	SessionID string
}

func (s *Service) Start(ctx context.Context, req StartRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.Start(ctx)
}

type SubmitAnswerRequest struct {
	SessionID string
	Username  string
	Answer    domain.Answer
	// Round, when positive, must be the number of the open round.
	Round int
}

func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.SubmitAnswer(ctx, req.Round, req.Username, req.Answer)
}

type QuitRequest struct {
	SessionID string
	Username  string
}

func (s *Service) Quit(ctx context.Context, req QuitRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.Quit(ctx, req.Username)
}

type RequestEndRequest struct {
	SessionID string
}

func (s *Service) RequestEnd(ctx context.Context, req RequestEndRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.RequestEnd(ctx)
}

type ResumeRequest struct {
	SessionID string
}

func (s *Service) Resume(ctx context.Context, req ResumeRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.Resume(ctx)
}

type EndSessionRequest struct {
	SessionID string
}

// EndSession finishes the session immediately.
func (s *Service) EndSession(ctx context.Context, req EndSessionRequest) (domain.Session, error) {
	a, err := s.Actor(req.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return a.End(ctx)
}

type CloseSessionRequest struct {
	SessionID string
}

// CloseSession stops the session's actor and forgets the session. Subscribers
// see their stream closed.
func (s *Service) CloseSession(ctx context.Context, req CloseSessionRequest) error {
	s.mu.Lock()
	a, ok := s.actors[req.SessionID]
	delete(s.actors, req.SessionID)
	n := len(s.actors)
	s.mu.Unlock()

	if !ok {
		return errors.New(errors.KindNotFound, errors.WithMessagef("session %s not found", req.SessionID))
	}

	a.Close()
	telemetry.SessionsLive(n)
	slog.InfoContext(ctx, "session: closed", "session_id", req.SessionID)

	return nil
}

// Subscribe streams the session's snapshots. See Actor.Subscribe.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Session, func(), error) {
	a, err := s.Actor(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return a.Subscribe(ctx)
}

// Stop stops every actor.
func (s *Service) Stop() {
	s.cancel()

	s.mu.Lock()
	actors := s.actors
	s.actors = make(map[string]*Actor)
	s.mu.Unlock()

	for _, a := range actors {
		a.Close()
	}
	telemetry.SessionsLive(0)
}
