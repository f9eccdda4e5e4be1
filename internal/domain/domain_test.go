package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/domain"
)

func TestSession_Clone(t *testing.T) {
	now := time.Now()
	s := domain.Session{
		SessionID: "s1",
		State:     domain.StateInProgress,
		Players:   []domain.Player{{Name: "Ann", JoinedAt: now, Active: true}},
		Round: &domain.Round{
			Number:   1,
			Question: domain.Question{Answers: []string{"a"}},
			Outcome:  &domain.Outcome{Answer: domain.Answer{"a"}},
		},
		Progress: map[string]domain.CategoryProgress{
			"Ann": {Completed: map[domain.Category]bool{"science": true}, Points: 10},
		},
	}

	c := s.Clone()
	c.Players[0].Active = false
	c.Round.Resolved = true
	c.Round.Question.Answers[0] = "b"
	c.Round.Outcome.Answer[0] = "b"
	c.Progress["Ann"].Completed["arts"] = true

	require.True(t, s.Players[0].Active)
	assert.False(t, s.Round.Resolved)
	assert.Equal(t, "a", s.Round.Question.Answers[0])
	assert.Equal(t, domain.Answer{"a"}, s.Round.Outcome.Answer)
	assert.Len(t, s.Progress["Ann"].Completed, 1)
}

func TestSession_PlayerIndex(t *testing.T) {
	s := domain.Session{
		Players: []domain.Player{
			{Name: "Ann", Active: true},
			{Name: "Bob", Active: false},
			{Name: "Cy", Active: true},
		},
	}

	assert.Equal(t, 0, s.PlayerIndex("  ann "))
	assert.Equal(t, -1, s.PlayerIndex("bob"))
	assert.Equal(t, 2, s.PlayerIndex("CY"))
	assert.Equal(t, 2, s.ActiveCount())
}

func TestCategoryProgress_IsComplete(t *testing.T) {
	all := []domain.Category{"a", "b"}

	p := domain.CategoryProgress{Completed: map[domain.Category]bool{"a": true}}
	assert.False(t, p.IsComplete(all))

	p.Completed["b"] = true
	assert.True(t, p.IsComplete(all))
	assert.Equal(t, []domain.Category{"a", "b"}, p.CompletedSet(all))
	assert.False(t, domain.CategoryProgress{}.IsComplete(nil))
}
