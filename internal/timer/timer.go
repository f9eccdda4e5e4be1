package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizbox/internal/domain"
)

const (
	DefaultBaseDuration = 20 * time.Second
	DefaultMinDuration  = 5 * time.Second
	DefaultMaxDuration  = 60 * time.Second
)

var difficultyFactor = map[domain.Difficulty]float64{
	domain.DifficultyEasy:   1,
	domain.DifficultyMedium: 1.5,
	domain.DifficultyHard:   2,
}

type Config struct {
	BaseDuration time.Duration
	MinDuration  time.Duration
	MaxDuration  time.Duration
}

// Durations derives the answer time of a question from its difficulty.
type Durations struct {
	base time.Duration
	min  time.Duration
	max  time.Duration
}

func NewDurations(c Config) Durations {
	if c.BaseDuration <= 0 {
		c.BaseDuration = DefaultBaseDuration
	}
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinDuration
	}
	if c.MaxDuration < c.MinDuration {
		c.MaxDuration = max(DefaultMaxDuration, c.MinDuration)
	}

	return Durations{
		base: c.BaseDuration,
		min:  c.MinDuration,
		max:  c.MaxDuration,
	}
}

// Clamp bounds d to the configured [min, max].
func (d Durations) Clamp(v time.Duration) time.Duration {
	return min(max(v, d.min), d.max)
}

// Duration returns the answer time for a question, scaled by its difficulty.
func (d Durations) Duration(q domain.Question) time.Duration {
	f, ok := difficultyFactor[q.Difficulty]
	if !ok {
		f = 1
	}

	return d.Clamp(time.Duration(float64(d.base) * f))
}

// Handle identifies one started countdown. The zero Handle is never live.
type Handle struct {
	id uint64
}

// Controller runs at most one countdown at a time. Starting a new countdown
// cancels the previous one.
type Controller struct {
	clock clockwork.Clock

	mu   sync.Mutex
	seq  uint64
	live *countdown
}

type countdown struct {
	id    uint64
	timer clockwork.Timer
	stop  chan struct{}
}

// NewController creates a controller. A nil clock means the real clock.
func NewController(clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Controller{clock: clock}
}

// Start arms a countdown of d and returns its handle. onExpire runs on its own
// goroutine, at most once, and never after the handle was cancelled or replaced.
func (c *Controller) Start(d time.Duration, onExpire func()) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()

	c.seq++
	cd := &countdown{
		id:    c.seq,
		timer: c.clock.NewTimer(d),
		stop:  make(chan struct{}),
	}
	c.live = cd

	go c.wait(cd, onExpire)

	return Handle{id: cd.id}
}

// Cancel stops the countdown if h is still live. Cancelling a stale handle is a no-op.
func (c *Controller) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == nil || c.live.id != h.id {
		return
	}

	c.cancelLocked()
}

// Stop cancels whatever countdown is live.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
}

// Live reports whether h is the current, not yet expired countdown.
func (c *Controller) Live(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.live != nil && c.live.id == h.id
}

func (c *Controller) cancelLocked() {
	if c.live == nil {
		return
	}

	stopAndDrainTimer(c.live.timer)
	close(c.live.stop)
	c.live = nil
}

func (c *Controller) wait(cd *countdown, onExpire func()) {
	select {
	case <-cd.timer.Chan():
		c.mu.Lock()
		fire := c.live == cd
		if fire {
			c.live = nil
		}
		c.mu.Unlock()

		if fire && onExpire != nil {
			onExpire()
		}
	case <-cd.stop:
	}
}

func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
