package category

import (
	"math/rand"
	"sync"
	"time"

	"github.com/victornm/quizbox/internal/domain"
)

// Rotator picks the next category for a player's turn.
type Rotator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRotator creates a rotator. A nil rng is replaced by a time-seeded one.
func NewRotator(rng *rand.Rand) *Rotator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Rotator{rng: rng}
}

// Next picks uniformly at random among the categories of all that are not in
// completed. Once every category is completed, eligibility resets to the full set
// and reshuffled is true. all must not be empty.
func (r *Rotator) Next(completed map[domain.Category]bool, all []domain.Category) (c domain.Category, reshuffled bool) {
	remaining := Remaining(completed, all)
	if len(remaining) == 0 {
		remaining = all
		reshuffled = true
	}

	r.mu.Lock()
	i := r.rng.Intn(len(remaining))
	r.mu.Unlock()

	return remaining[i], reshuffled
}

// Remaining returns all minus completed, keeping the order of all.
func Remaining(completed map[domain.Category]bool, all []domain.Category) []domain.Category {
	out := make([]domain.Category, 0, len(all))
	for _, c := range all {
		if !completed[c] {
			out = append(out, c)
		}
	}
	return out
}
