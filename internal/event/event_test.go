package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	var (
		opened   = domain.EventRoundOpened{SessionID: "s1", Round: domain.Round{Number: 1}}
		resolved = domain.EventRoundResolved{SessionID: "s1", Round: domain.Round{Number: 1}, Total: 150}
		finished = domain.EventSessionFinished{Reason: "ended"}
	)

	tests := map[string]struct {
		arrange func(b *event.Bus, rec *recorder)
		publish []event.Event
		assert  func(t *testing.T, rec *recorder)
	}{
		"subscriber only receives the events it subscribed to": {
			arrange: func(b *event.Bus, rec *recorder) {
				b.Subscribe(domain.EventNameRoundResolved, rec.handler("leaderboard"))
			},
			publish: []event.Event{opened, resolved, finished},
			assert: func(t *testing.T, rec *recorder) {
				assert.Equal(t, []event.Event{resolved}, rec.got("leaderboard"))
			},
		},

		"every subscriber of an event receives it": {
			arrange: func(b *event.Bus, rec *recorder) {
				b.Subscribe(domain.EventNameSessionFinished, rec.handler("leaderboard"))
				b.Subscribe(domain.EventNameSessionFinished, rec.handler("results"))
			},
			publish: []event.Event{finished},
			assert: func(t *testing.T, rec *recorder) {
				assert.Equal(t, []event.Event{finished}, rec.got("leaderboard"))
				assert.Equal(t, []event.Event{finished}, rec.got("results"))
			},
		},

		"one handler may subscribe to several events": {
			arrange: func(b *event.Bus, rec *recorder) {
				h := rec.handler("log")
				b.Subscribe(domain.EventNameRoundOpened, h)
				b.Subscribe(domain.EventNameRoundResolved, h)
			},
			publish: []event.Event{opened, resolved, opened, finished},
			assert: func(t *testing.T, rec *recorder) {
				assert.ElementsMatch(t, []event.Event{opened, resolved, opened}, rec.got("log"))
			},
		},

		"events without subscribers are dropped": {
			arrange: func(b *event.Bus, rec *recorder) {},
			publish: []event.Event{opened, resolved},
			assert: func(t *testing.T, rec *recorder) {
				assert.Empty(t, rec.got("log"))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b := event.NewBus()
			rec := &recorder{received: make(map[string][]event.Event)}
			tt.arrange(b, rec)

			for _, e := range tt.publish {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, rec)
		})
	}
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	b := event.NewBus()

	var got []int
	b.Subscribe("seq", func(_ context.Context, e event.Event) error {
		got = append(got, int(e.(seqEvent)))
		return nil
	})

	want := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		b.Publish(context.Background(), seqEvent(i))
		want = append(want, i)
	}
	b.Stop()

	assert.Equal(t, want, got)
}

func TestBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := event.NewBus()

	var calls int
	b.Subscribe("e1", func(_ context.Context, _ event.Event) error {
		calls++
		if calls == 1 {
			panic("first call fails")
		}
		return nil
	})

	b.Publish(context.Background(), eventWithName("e1"))
	b.Publish(context.Background(), eventWithName("e1"))
	b.Stop()

	// publishing after stop is dropped
	b.Publish(context.Background(), eventWithName("e1"))

	assert.Equal(t, 2, calls)
}

type seqEvent int

func (seqEvent) Name() string { return "seq" }

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type recorder struct {
	mu       sync.Mutex
	received map[string][]event.Event
}

func (r *recorder) handler(name string) event.Handler {
	return func(_ context.Context, e event.Event) error {
		r.mu.Lock()
		r.received[name] = append(r.received[name], e)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) got(name string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.received[name]
}
