package question

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
)

// Source fetches questions in bulk.
type Source interface {
	LoadAll(ctx context.Context) ([]domain.Question, error)
}

// Bank is an in-memory question cache. It serves questions synchronously so a
// session never waits on I/O while a round opens.
type Bank struct {
	mu         sync.RWMutex
	byCategory map[domain.Category][]domain.Question
	cursor     map[domain.Category]int
}

func NewBank() *Bank {
	return &Bank{
		byCategory: make(map[domain.Category][]domain.Question),
		cursor:     make(map[domain.Category]int),
	}
}

// Load fetches every question from src and adds the valid ones.
func (b *Bank) Load(ctx context.Context, src Source) (int, error) {
	qs, err := src.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load questions: %w", err)
	}

	return b.Add(qs...)
}

// Retry configures LoadRetry. Zero fields take the defaults.
type Retry struct {
	Clock          clockwork.Clock
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func (r Retry) withDefaults() Retry {
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	if r.MinBackoff <= 0 {
		r.MinBackoff = time.Second
	}
	if r.MaxBackoff < r.MinBackoff {
		r.MaxBackoff = max(30*time.Second, r.MinBackoff)
	}
	if r.AttemptTimeout <= 0 {
		r.AttemptTimeout = time.Minute
	}
	return r
}

// LoadRetry calls Load until it succeeds or ctx is done. The wait between
// attempts doubles from MinBackoff up to MaxBackoff. Invalid questions are
// not retried.
func (b *Bank) LoadRetry(ctx context.Context, src Source, r Retry) (int, error) {
	r = r.withDefaults()
	backoff := r.MinBackoff

	for attempt := 1; ; attempt++ {
		n, err := b.loadAttempt(ctx, src, r.AttemptTimeout)
		if err == nil {
			return n, nil
		}
		if stderrors.Is(err, errors.New(errors.KindInvalidArgument)) {
			return n, err
		}

		slog.WarnContext(ctx, "question: load failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("load questions after %d attempts: %w", attempt, ctx.Err())
		case <-r.Clock.After(backoff):
		}

		backoff = min(2*backoff, r.MaxBackoff)
	}
}

func (b *Bank) loadAttempt(ctx context.Context, src Source, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return b.Load(ctx, src)
}

// Add stores questions. It stops at the first invalid one.
func (b *Bank) Add(qs ...domain.Question) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, q := range qs {
		if err := Validate(q); err != nil {
			return i, err
		}
		b.byCategory[q.Category] = append(b.byCategory[q.Category], q)
	}

	return len(qs), nil
}

// Question returns the next question of the category. Questions of a category
// are served in turn, so none repeats before the pool is used up.
func (b *Bank) Question(c domain.Category) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	qs := b.byCategory[c]
	if len(qs) == 0 {
		return domain.Question{}, errors.New(errors.KindLoading,
			errors.WithMessagef("no question available for category %q", c),
		)
	}

	i := b.cursor[c] % len(qs)
	b.cursor[c] = i + 1

	return qs[i], nil
}

// Categories lists the categories that have at least one question.
func (b *Bank) Categories() []domain.Category {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Category, 0, len(b.byCategory))
	for c := range b.byCategory {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, qs := range b.byCategory {
		n += len(qs)
	}
	return n
}

// Missing returns the categories of want without any question.
func (b *Bank) Missing(want []domain.Category) []domain.Category {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.Category
	for _, c := range want {
		if len(b.byCategory[c]) == 0 {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks that a question can be scored.
func Validate(q domain.Question) error {
	if q.QuestionID == "" {
		return errors.InvalidArgument("question: missing id")
	}
	if q.Category == "" {
		return errors.InvalidArgument("question %s: missing category", q.QuestionID)
	}
	if len(q.Answers) == 0 {
		return errors.InvalidArgument("question %s: missing answers", q.QuestionID)
	}

	switch q.Type {
	case domain.AnswerSingleChoice:
		if len(q.Options) > 0 && !slices.ContainsFunc(q.Options, func(o domain.Option) bool { return o.OptionID == q.Answers[0] }) {
			return errors.InvalidArgument("question %s: answer %q is not an option", q.QuestionID, q.Answers[0])
		}
	case domain.AnswerTrueFalse, domain.AnswerFreeText, domain.AnswerMultiPart:
	default:
		return errors.InvalidArgument("question %s: unknown answer type %q", q.QuestionID, q.Type)
	}

	return nil
}
