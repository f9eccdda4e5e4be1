package session

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/event"
	"github.com/victornm/quizbox/internal/telemetry"
	"github.com/victornm/quizbox/internal/timer"
)

const (
	inboxSize      = 64
	subscriberSize = 16
)

type msg interface{ isActorMsg() }

type apply struct {
	op    string
	fn    func(domain.Session) (domain.Session, error)
	reply chan reply
}

func (apply) isActorMsg() {}

type reply struct {
	s   domain.Session
	err error
}

type expire struct {
	round int
}

func (expire) isActorMsg() {}

type subscribe struct {
	reply chan subscription
}

func (subscribe) isActorMsg() {}

type unsubscribe struct {
	id int
}

func (unsubscribe) isActorMsg() {}

type subscription struct {
	id int
	ch chan domain.Session
}

// Actor owns one session. A single goroutine applies every operation in arrival
// order, arms the round timer and fans new snapshots out to subscribers, so
// operations never interleave and need no locking of session state.
type Actor struct {
	m     *Machine
	eb    *event.Bus
	timer *timer.Controller

	inbox  chan msg
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// owned by loop
	state   domain.Session
	subs    map[int]chan domain.Session
	nextSub int
}

func newActor(parent context.Context, m *Machine, eb *event.Bus, clock clockwork.Clock, initial domain.Session) *Actor {
	ctx, cancel := context.WithCancel(parent)

	a := &Actor{
		m:      m,
		eb:     eb,
		timer:  timer.NewController(clock),
		inbox:  make(chan msg, inboxSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		state:  initial,
		subs:   make(map[int]chan domain.Session),
	}

	go a.loop()
	return a
}

func (a *Actor) loop() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			a.shutdown()
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case apply:
				next, err := msg.fn(a.state)
				if err != nil {
					kind := errors.Convert(err).Kind
					telemetry.OperationFailed(msg.op, string(kind))
					slog.DebugContext(a.ctx, "session: operation rejected",
						"session_id", a.state.SessionID,
						"op", msg.op,
						"kind", kind,
					)
				} else {
					a.commit(next)
				}
				msg.reply <- reply{s: a.state.Clone(), err: err}

			case expire:
				a.commit(a.m.OnTimerExpired(a.state, msg.round))

			case subscribe:
				a.nextSub++
				ch := make(chan domain.Session, subscriberSize)
				ch <- a.state.Clone()
				a.subs[a.nextSub] = ch
				msg.reply <- subscription{id: a.nextSub, ch: ch}

			case unsubscribe:
				if ch, ok := a.subs[msg.id]; ok {
					close(ch)
					delete(a.subs, msg.id)
				}
			}
		}
	}
}

func (a *Actor) commit(next domain.Session) {
	prev := a.state
	if next.Version == prev.Version {
		return
	}

	a.state = next
	a.syncTimer(prev, next)
	a.publish(prev, next)
	a.broadcast(next)
}

// syncTimer keeps exactly one countdown armed for the open round.
func (a *Actor) syncTimer(prev, next domain.Session) {
	switch {
	case next.State != domain.StateInProgress, next.Round == nil, next.Round.Resolved:
		a.timer.Stop()

	case prev.State != domain.StateInProgress, prev.Round == nil, prev.Round.Number != next.Round.Number:
		round := next.Round.Number
		a.timer.Start(next.Round.Duration, func() {
			a.post(expire{round: round})
		})
	}
}

func (a *Actor) publish(prev, next domain.Session) {
	ctx := a.ctx
	id := next.SessionID

	if prev.State == domain.StateCreated && next.State == domain.StateInProgress {
		slog.InfoContext(ctx, "session: started", "session_id", id, "players", next.ActiveCount())
		telemetry.SessionStarted()
		a.emit(domain.EventSessionStarted{Session: next})
	}

	if r := next.Previous; r != nil && (prev.Previous == nil || prev.Previous.Number != r.Number) {
		slog.InfoContext(ctx, "session: round resolved",
			"session_id", id,
			"round", r.Number,
			"player", r.Player,
			"correct", r.Outcome.Correct,
			"timed_out", r.Outcome.TimedOut,
			"points", r.Outcome.Points,
		)
		telemetry.RoundResolved(*r)
		a.emit(domain.EventRoundResolved{SessionID: id, Round: *r, Total: next.Points(r.Player)})
	}

	if r := next.Round; r != nil && !r.Resolved && (prev.Round == nil || prev.Round.Number != r.Number) {
		slog.InfoContext(ctx, "session: round opened",
			"session_id", id,
			"round", r.Number,
			"player", r.Player,
			"category", r.Category,
			"duration", r.Duration,
		)
		a.emit(domain.EventRoundOpened{SessionID: id, Round: *r})

		if r.Reshuffled {
			a.emit(domain.EventCategoriesReshuffled{SessionID: id, Player: r.Player})
		}
	}

	if prev.State != domain.StateFinished && next.State == domain.StateFinished {
		slog.InfoContext(ctx, "session: finished", "session_id", id, "reason", next.FinishReason)
		telemetry.SessionFinished(next.FinishReason)
		a.emit(domain.EventSessionFinished{Session: next, Reason: next.FinishReason})
	}

	a.emit(domain.EventSnapshotUpdated{Session: next})
}

func (a *Actor) emit(e event.Event) {
	if a.eb == nil {
		return
	}

	a.eb.Publish(a.ctx, e)
}

// broadcast hands the snapshot to every subscriber. A subscriber whose buffer is
// full is dropped.
func (a *Actor) broadcast(s domain.Session) {
	for id, ch := range a.subs {
		select {
		case ch <- s.Clone():
		default:
			close(ch)
			delete(a.subs, id)
		}
	}
}

func (a *Actor) shutdown() {
	a.timer.Stop()

	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
}

func (a *Actor) post(m msg) {
	select {
	case a.inbox <- m:
	case <-a.done:
	}
}

func (a *Actor) do(ctx context.Context, op string, fn func(domain.Session) (domain.Session, error)) (domain.Session, error) {
	r := make(chan reply, 1)

	select {
	case a.inbox <- apply{op: op, fn: fn, reply: r}:
	case <-ctx.Done():
		return domain.Session{}, ctx.Err()
	case <-a.done:
		return domain.Session{}, errClosed
	}

	select {
	case res := <-r:
		return res.s, res.err
	case <-ctx.Done():
		return domain.Session{}, ctx.Err()
	case <-a.done:
		return domain.Session{}, errClosed
	}
}

var errClosed = errors.New(errors.KindNotFound, errors.WithMessagef("session is closed"))

// Snapshot returns the current session snapshot.
func (a *Actor) Snapshot(ctx context.Context) (domain.Session, error) {
	return a.do(ctx, "snapshot", func(s domain.Session) (domain.Session, error) {
		return s, nil
	})
}

func (a *Actor) Join(ctx context.Context, name string) (domain.Session, error) {
	return a.do(ctx, "join", func(s domain.Session) (domain.Session, error) {
		return a.m.Join(s, name)
	})
}

func (a *Actor) Start(ctx context.Context) (domain.Session, error) {
	return a.do(ctx, "start", a.m.Start)
}

// SubmitAnswer submits the answer of the turn holder. A positive round must
// match the open round, so an answer meant for an earlier round is rejected.
func (a *Actor) SubmitAnswer(ctx context.Context, round int, name string, answer domain.Answer) (domain.Session, error) {
	return a.do(ctx, "submit_answer", func(s domain.Session) (domain.Session, error) {
		if round > 0 && s.State == domain.StateInProgress && (s.Round == nil || s.Round.Number != round) {
			return s, errors.New(errors.KindOutOfOrder, errors.WithMessagef("round %d is not open", round))
		}
		return a.m.SubmitAnswer(s, name, answer)
	})
}

func (a *Actor) Quit(ctx context.Context, name string) (domain.Session, error) {
	return a.do(ctx, "quit", func(s domain.Session) (domain.Session, error) {
		return a.m.Quit(s, name)
	})
}

func (a *Actor) RequestEnd(ctx context.Context) (domain.Session, error) {
	return a.do(ctx, "request_end", a.m.RequestEnd)
}

func (a *Actor) Resume(ctx context.Context) (domain.Session, error) {
	return a.do(ctx, "resume", a.m.Resume)
}

func (a *Actor) End(ctx context.Context) (domain.Session, error) {
	return a.do(ctx, "end", func(s domain.Session) (domain.Session, error) {
		return a.m.End(s), nil
	})
}

// Subscribe streams snapshots, starting with the current one. The channel is
// closed when the subscriber falls behind, cancels, or the actor stops.
func (a *Actor) Subscribe(ctx context.Context) (<-chan domain.Session, func(), error) {
	r := make(chan subscription, 1)

	select {
	case a.inbox <- subscribe{reply: r}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-a.done:
		return nil, nil, errClosed
	}

	var sub subscription
	select {
	case sub = <-r:
	case <-a.done:
		return nil, nil, errClosed
	}

	cancel := func() {
		a.post(unsubscribe{id: sub.id})
	}

	return sub.ch, cancel, nil
}

// Close stops the actor and its timer and waits for the loop to exit.
func (a *Actor) Close() {
	a.cancel()
	<-a.done
}
