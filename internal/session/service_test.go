package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/event"
	"github.com/victornm/quizbox/internal/session"
	"github.com/victornm/quizbox/internal/turn"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(_ context.Context, e event.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name())
	}
	return out
}

func (r *recorder) last() event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func newService(t *testing.T, f fixture, eb *event.Bus) *session.Service {
	t.Helper()

	svc, err := session.NewService(session.Config{
		Machine:  f.m,
		EventBus: eb,
		Clock:    f.clock,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	return svc
}

func eventually(t *testing.T, svc *session.Service, id string, cond func(s domain.Session) bool) domain.Session {
	t.Helper()

	var last domain.Session
	require.Eventually(t, func() bool {
		s, err := svc.GetSession(context.Background(), session.GetSessionRequest{SessionID: id})
		if err != nil {
			return false
		}
		last = s
		return cond(s)
	}, time.Second, 5*time.Millisecond)

	return last
}

func TestNewService(t *testing.T) {
	_, err := session.NewService(session.Config{})
	assert.Error(t, err)
}

func TestService_Operations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(t, f, nil)

	s, err := svc.CreateSession(ctx, session.CreateSessionRequest{Players: []string{"A"}})
	require.NoError(t, err)
	id := s.SessionID

	_, err = svc.Start(ctx, session.StartRequest{SessionID: id})
	requireKind(t, err, errors.KindNoPlayer)

	s, err = svc.Join(ctx, session.JoinRequest{SessionID: id, Username: "B"})
	require.NoError(t, err)
	assert.Len(t, s.Players, 2)

	s, err = svc.Start(ctx, session.StartRequest{SessionID: id})
	require.NoError(t, err)
	require.Equal(t, 1, s.Round.Number)

	_, err = svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, Username: "A", Answer: correct, Round: 2})
	requireKind(t, err, errors.KindOutOfOrder)

	s, err = svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, Username: "A", Answer: correct, Round: 1})
	require.NoError(t, err)
	assert.Equal(t, 150, s.Points("A"))

	_, err = svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, Username: "A", Answer: correct, Round: 1})
	requireKind(t, err, errors.KindOutOfOrder)

	s, err = svc.RequestEnd(ctx, session.RequestEndRequest{SessionID: id})
	require.NoError(t, err)
	assert.True(t, s.EndRequested)

	s, err = svc.Quit(ctx, session.QuitRequest{SessionID: id, Username: "B"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinished, s.State)

	_, err = svc.Join(ctx, session.JoinRequest{SessionID: id, Username: "C"})
	requireKind(t, err, errors.KindHotJoin)

	_, err = svc.Resume(ctx, session.ResumeRequest{SessionID: id})
	requireKind(t, err, errors.KindNoGameInProgress)

	s, err = svc.EndSession(ctx, session.EndSessionRequest{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, string(turn.ReasonPlayers), s.FinishReason)

	require.NoError(t, svc.CloseSession(ctx, session.CloseSessionRequest{SessionID: id}))

	_, err = svc.GetSession(ctx, session.GetSessionRequest{SessionID: id})
	requireKind(t, err, errors.KindNotFound)

	err = svc.CloseSession(ctx, session.CloseSessionRequest{SessionID: id})
	requireKind(t, err, errors.KindNotFound)
}

func TestService_CreateSessionRejectsBadRoster(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, f, nil)

	_, err := svc.CreateSession(context.Background(), session.CreateSessionRequest{Players: []string{"Ann", "ann"}})
	requireKind(t, err, errors.KindInvalidArgument)
}

func TestService_TimerExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withRules(turn.Rules{MaxCycles: 1}))

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	rec := &recorder{}
	for _, name := range []string{
		domain.EventNameSessionStarted,
		domain.EventNameRoundOpened,
		domain.EventNameRoundResolved,
		domain.EventNameSessionFinished,
	} {
		eb.Subscribe(name, rec.handle)
	}

	svc := newService(t, f, eb)

	s, err := svc.CreateSession(ctx, session.CreateSessionRequest{Players: []string{"A", "B"}})
	require.NoError(t, err)
	id := s.SessionID

	_, err = svc.Start(ctx, session.StartRequest{SessionID: id})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	s = eventually(t, svc, id, func(s domain.Session) bool { return s.RoundsPlayed == 1 })
	assert.True(t, s.Previous.Outcome.TimedOut)
	assert.Equal(t, "B", s.Round.Player)

	// the late answer for the expired round loses
	_, err = svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, Username: "A", Answer: correct})
	requireKind(t, err, errors.KindOutOfOrder)

	f.clock.Advance(10 * time.Second)
	s = eventually(t, svc, id, func(s domain.Session) bool { return s.State == domain.StateFinished })
	assert.Equal(t, string(turn.ReasonMaxCycles), s.FinishReason)
	assert.Equal(t, 2, s.RoundsPlayed)

	require.Eventually(t, func() bool {
		return len(rec.names()) == 6
	}, time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, []string{
		domain.EventNameSessionStarted,
		domain.EventNameRoundOpened,
		domain.EventNameRoundResolved,
		domain.EventNameRoundOpened,
		domain.EventNameRoundResolved,
		domain.EventNameSessionFinished,
	}, rec.names())
}

func TestService_SubmitCancelsTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(t, f, nil)

	s, err := svc.CreateSession(ctx, session.CreateSessionRequest{Players: []string{"A", "B"}})
	require.NoError(t, err)
	id := s.SessionID

	_, err = svc.Start(ctx, session.StartRequest{SessionID: id})
	require.NoError(t, err)

	f.clock.Advance(4 * time.Second)
	s, err = svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: id, Username: "A", Answer: correct})
	require.NoError(t, err)
	assert.Equal(t, 130, s.Points("A"))

	// six more seconds would have ended A's round, B still has four left
	f.clock.Advance(6 * time.Second)
	time.Sleep(20 * time.Millisecond)

	s, err = svc.GetSession(ctx, session.GetSessionRequest{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, 1, s.RoundsPlayed)
	assert.Equal(t, "B", s.Round.Player)
	assert.False(t, s.Round.Resolved)
}

func TestService_Subscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(t, f, nil)

	s, err := svc.CreateSession(ctx, session.CreateSessionRequest{Players: []string{"A", "B"}})
	require.NoError(t, err)
	id := s.SessionID

	_, _, err = svc.Subscribe(ctx, "missing")
	requireKind(t, err, errors.KindNotFound)

	ch, cancel, err := svc.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel()

	first := <-ch
	assert.Equal(t, domain.StateCreated, first.State)

	_, err = svc.Start(ctx, session.StartRequest{SessionID: id})
	require.NoError(t, err)

	select {
	case next := <-ch:
		assert.Equal(t, domain.StateInProgress, next.State)
		assert.Greater(t, next.Version, first.Version)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after start")
	}

	require.NoError(t, svc.CloseSession(ctx, session.CloseSessionRequest{SessionID: id}))

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}

func TestService_FinishedEventCarriesRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	rec := &recorder{}
	eb.Subscribe(domain.EventNameSessionFinished, rec.handle)

	svc := newService(t, f, eb)

	s, err := svc.CreateSession(ctx, session.CreateSessionRequest{Players: []string{"A", "B"}})
	require.NoError(t, err)

	_, err = svc.Start(ctx, session.StartRequest{SessionID: s.SessionID})
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: s.SessionID, Username: "A", Answer: correct})
	require.NoError(t, err)
	_, err = svc.EndSession(ctx, session.EndSessionRequest{SessionID: s.SessionID})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.last() != nil }, time.Second, 5*time.Millisecond)

	e, ok := rec.last().(domain.EventSessionFinished)
	require.True(t, ok)
	assert.Equal(t, string(turn.ReasonEnded), e.Reason)
	require.Len(t, e.Session.Ranking, 2)
	assert.Equal(t, "A", e.Session.Ranking[0].Name)
	assert.Equal(t, 150, e.Session.Ranking[0].Points)
}
