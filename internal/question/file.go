package question

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/victornm/quizbox/internal/domain"
)

type fileDoc struct {
	Questions []fileQuestion `yaml:"questions"`
}

type fileQuestion struct {
	ID         string       `yaml:"id"`
	Category   string       `yaml:"category"`
	Type       string       `yaml:"type"`
	Difficulty string       `yaml:"difficulty"`
	Text       string       `yaml:"text"`
	Options    []fileOption `yaml:"options"`
	Answers    []string     `yaml:"answers"`
}

type fileOption struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// File reads questions from a YAML document.
type File struct {
	Path string
}

func (f File) LoadAll(_ context.Context) ([]domain.Question, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	return Parse(b)
}

// Parse decodes a YAML question document.
func Parse(b []byte) ([]domain.Question, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	qs := make([]domain.Question, 0, len(doc.Questions))
	for _, fq := range doc.Questions {
		q := domain.Question{
			QuestionID:   fq.ID,
			Category:     domain.Category(fq.Category),
			QuestionText: fq.Text,
			Type:         domain.AnswerType(fq.Type),
			Difficulty:   domain.Difficulty(fq.Difficulty),
			Answers:      fq.Answers,
		}
		if q.Difficulty == "" {
			q.Difficulty = domain.DifficultyMedium
		}
		for _, o := range fq.Options {
			q.Options = append(q.Options, domain.Option{OptionID: o.ID, OptionText: o.Text})
		}
		qs = append(qs, q)
	}

	return qs, nil
}
