package question

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizbox/internal/domain"
)

const defaultPageSize = 500

type RepositoryConfig struct {
	DB       *pgxpool.Pool
	PageSize int
}

// Repository reads questions from Postgres.
type Repository struct {
	db       *pgxpool.Pool
	pageSize int
}

func NewRepository(c RepositoryConfig) *Repository {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}

	return &Repository{db: c.DB, pageSize: c.PageSize}
}

type ListQuestionsRequest struct {
	// AfterID is the keyset cursor: the last question id of the previous page.
	AfterID string
	Limit   int
}

type dbOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ListQuestions returns one page of questions ordered by id.
func (r *Repository) ListQuestions(ctx context.Context, req ListQuestionsRequest) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, category, question_text, answer_type, difficulty, options, answers
FROM questions
WHERE question_id > $1
ORDER BY question_id
LIMIT $2;`

	rows, err := r.db.Query(ctx, stmt, req.AfterID, req.Limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var (
			q    domain.Question
			opts []dbOption
		)
		if err := row.Scan(&q.QuestionID, &q.Category, &q.QuestionText, &q.Type, &q.Difficulty, &opts, &q.Answers); err != nil {
			return domain.Question{}, err
		}
		for _, o := range opts {
			q.Options = append(q.Options, domain.Option{OptionID: o.ID, OptionText: o.Text})
		}
		return q, nil
	})
}

// LoadAll pages through the whole question table.
func (r *Repository) LoadAll(ctx context.Context) ([]domain.Question, error) {
	return loadPages(ctx, r.pageSize, r.ListQuestions)
}

type listFunc func(ctx context.Context, req ListQuestionsRequest) ([]domain.Question, error)

// loadPages follows the keyset cursor until a page comes back short.
func loadPages(ctx context.Context, pageSize int, list listFunc) ([]domain.Question, error) {
	var (
		all   []domain.Question
		after string
	)

	for {
		page, err := list(ctx, ListQuestionsRequest{AfterID: after, Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("list questions after %q: %w", after, err)
		}

		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		after = page[len(page)-1].QuestionID
	}
}
