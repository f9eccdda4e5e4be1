package score

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizbox/internal/domain"
)

const (
	DefaultBasePoints       = 100
	DefaultSpeedBonusFactor = 0.5
)

type EngineConfig struct {
	// BasePoints is awarded for any correct answer.
	BasePoints int
	// SpeedBonusFactor scales the extra points for answering early. An instant
	// correct answer earns BasePoints * (1 + SpeedBonusFactor).
	SpeedBonusFactor float64
}

// Engine evaluates answers and computes point deltas.
type Engine struct {
	base  decimal.Decimal
	bonus decimal.Decimal
}

type Result struct {
	Correct bool
	Points  int
}

func NewEngine(c EngineConfig) (*Engine, error) {
	if c.BasePoints < 1 {
		return nil, fmt.Errorf("score: base points must be positive, got %d", c.BasePoints)
	}
	if c.SpeedBonusFactor < 0 {
		return nil, fmt.Errorf("score: speed bonus factor must not be negative, got %v", c.SpeedBonusFactor)
	}

	return &Engine{
		base:  decimal.NewFromInt(int64(c.BasePoints)),
		bonus: decimal.NewFromFloat(c.SpeedBonusFactor),
	}, nil
}

// MaxPoints is the most a single answer can earn: BasePoints * (1 + SpeedBonusFactor)
// rounded down.
func (e *Engine) MaxPoints() int {
	return int(e.base.Mul(decimal.NewFromInt(1).Add(e.bonus)).Floor().IntPart())
}

// Score checks the answer against the question and returns the points earned.
// elapsed is clamped to [0, duration].
func (e *Engine) Score(q domain.Question, answer domain.Answer, elapsed, duration time.Duration) Result {
	if !Correct(q, answer) {
		return Result{}
	}

	return Result{Correct: true, Points: e.points(elapsed, duration)}
}

func (e *Engine) points(elapsed, duration time.Duration) int {
	remaining := decimal.Zero
	if duration > 0 {
		elapsed = min(max(elapsed, 0), duration)
		remaining = decimal.NewFromInt(int64(duration - elapsed)).
			Div(decimal.NewFromInt(int64(duration)))
	}

	multiplier := decimal.NewFromInt(1).Add(e.bonus.Mul(remaining))
	p := int(e.base.Mul(multiplier).Round(0).IntPart())

	// rounding up must not push a fractional maximum past its bound
	return min(p, e.MaxPoints())
}

// Correct reports whether answer matches the canonical answers of q.
func Correct(q domain.Question, answer domain.Answer) bool {
	if len(q.Answers) == 0 || len(answer) == 0 {
		return false
	}

	switch q.Type {
	case domain.AnswerTrueFalse:
		want, ok1 := parseBool(q.Answers[0])
		got, ok2 := parseBool(answer[0])
		return ok1 && ok2 && want == got

	case domain.AnswerMultiPart:
		return sameSet(q.Answers, answer)

	case domain.AnswerFreeText:
		got := normalize(answer[0])
		if got == "" {
			return false
		}
		for _, a := range q.Answers {
			if normalize(a) == got {
				return true
			}
		}
		return false

	default:
		return len(answer) == 1 && answer[0] == q.Answers[0]
	}
}

func sameSet(want []string, got []string) bool {
	a := normalizeAll(want)
	b := normalizeAll(got)
	if len(a) != len(b) {
		return false
	}

	return slices.Equal(a, b)
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// normalize folds case and collapses runs of whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func parseBool(s string) (v bool, ok bool) {
	switch normalize(s) {
	case "true", "t", "yes", "y":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	}
	return false, false
}
