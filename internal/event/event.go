package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultQueueSize = 1024
	defaultTimeout   = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. Every subscription has its own queue and
// worker, so a handler sees events in publish order and a slow handler does not
// delay the others.
type Bus struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	subs   map[string][]*subscription
}

type subscription struct {
	name  string
	h     Handler
	queue chan delivery
}

type delivery struct {
	ctx context.Context
	e   Event
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*subscription),
	}
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	s := &subscription{
		name:  name,
		h:     h,
		queue: make(chan delivery, defaultQueueSize),
	}
	b.subs[name] = append(b.subs[name], s)

	b.wg.Add(1)
	go b.run(s)
}

// Publish an event. Events published after Stop are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		slog.WarnContext(ctx, "event: publish after stop", "event", e.Name())
		return
	}

	for _, s := range b.subs[e.Name()] {
		s.queue <- delivery{ctx: context.WithoutCancel(ctx), e: e}
	}
}

func (b *Bus) run(s *subscription) {
	defer b.wg.Done()

	for d := range s.queue {
		b.dispatch(s, d)
	}
}

func (b *Bus) dispatch(s *subscription, d delivery) {
	ctx, cancel := context.WithTimeout(d.ctx, defaultTimeout)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", s.name,
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}

		cancel()
	}()

	if err := s.h(ctx, d.e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", s.name,
			"error", err,
		)
	}
}

// Stop drains every queue and waits for all handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.queue)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}
