package question_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/question"
)

const doc = `
questions:
  - id: sci-1
    category: science
    type: single_choice
    difficulty: easy
    text: Which planet is known as the red planet?
    options:
      - {id: a, text: Venus}
      - {id: b, text: Mars}
    answers: [b]
  - id: his-1
    category: history
    type: free_text
    text: Who painted the Mona Lisa?
    answers: [Leonardo da Vinci, da Vinci]
`

func TestFile_LoadAll(t *testing.T) {
	p := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o600))

	qs, err := question.File{Path: p}.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 2)

	assert.Equal(t, domain.Question{
		QuestionID:   "sci-1",
		Category:     "science",
		QuestionText: "Which planet is known as the red planet?",
		Type:         domain.AnswerSingleChoice,
		Difficulty:   domain.DifficultyEasy,
		Options:      []domain.Option{{OptionID: "a", OptionText: "Venus"}, {OptionID: "b", OptionText: "Mars"}},
		Answers:      []string{"b"},
	}, qs[0])
	assert.Equal(t, domain.DifficultyMedium, qs[1].Difficulty, "difficulty defaults to medium")

	b := question.NewBank()
	_, err = b.Add(qs...)
	require.NoError(t, err)
}

func TestFile_Errors(t *testing.T) {
	_, err := question.File{Path: filepath.Join(t.TempDir(), "missing.yaml")}.LoadAll(context.Background())
	assert.Error(t, err)

	_, err = question.Parse([]byte("questions: [:"))
	assert.Error(t, err)
}
