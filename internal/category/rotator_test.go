package category_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/category"
	"github.com/victornm/quizbox/internal/domain"
)

var all = []domain.Category{"general", "science", "history", "geography"}

func TestRotator_Next(t *testing.T) {
	tests := map[string]struct {
		completed      map[domain.Category]bool
		wantIn         []domain.Category
		wantReshuffled bool
	}{
		"nothing completed offers any category": {
			completed: nil,
			wantIn:    all,
		},
		"completed categories are never offered": {
			completed: map[domain.Category]bool{"general": true, "history": true},
			wantIn:    []domain.Category{"science", "geography"},
		},
		"a single remaining category is always offered": {
			completed: map[domain.Category]bool{"general": true, "history": true, "science": true},
			wantIn:    []domain.Category{"geography"},
		},
		"exhausted set resets and reports a reshuffle": {
			completed:      map[domain.Category]bool{"general": true, "history": true, "science": true, "geography": true},
			wantIn:         all,
			wantReshuffled: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := category.NewRotator(rand.New(rand.NewSource(42)))
			for i := 0; i < 200; i++ {
				c, reshuffled := r.Next(tt.completed, all)
				require.Contains(t, tt.wantIn, c)
				require.Equal(t, tt.wantReshuffled, reshuffled)
			}
		})
	}
}

func TestRotator_CoversEveryCategory(t *testing.T) {
	r := category.NewRotator(rand.New(rand.NewSource(7)))
	completed := map[domain.Category]bool{}

	for i := 0; i < len(all); i++ {
		c, reshuffled := r.Next(completed, all)
		require.False(t, reshuffled)
		require.False(t, completed[c], "category %q offered twice before exhaustion", c)
		completed[c] = true
	}

	assert.Len(t, completed, len(all))

	_, reshuffled := r.Next(completed, all)
	assert.True(t, reshuffled)
}

func TestRemaining(t *testing.T) {
	got := category.Remaining(map[domain.Category]bool{"science": true}, all)
	assert.Equal(t, []domain.Category{"general", "history", "geography"}, got)
}
