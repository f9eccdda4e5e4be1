package question

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/domain"
)

// table serves ListQuestions over an in-memory id-ordered table.
type table struct {
	ids  []string
	reqs []ListQuestionsRequest
	fail int // fail the nth request, 1-based
}

func newTable(n int) *table {
	t := &table{}
	for i := 0; i < n; i++ {
		t.ids = append(t.ids, fmt.Sprintf("q%03d", i))
	}
	sort.Strings(t.ids)
	return t
}

func (t *table) list(_ context.Context, req ListQuestionsRequest) ([]domain.Question, error) {
	t.reqs = append(t.reqs, req)
	if len(t.reqs) == t.fail {
		return nil, stderrors.New("connection reset")
	}

	var page []domain.Question
	for _, id := range t.ids {
		if id > req.AfterID && len(page) < req.Limit {
			page = append(page, domain.Question{QuestionID: id})
		}
	}
	return page, nil
}

func TestLoadPages(t *testing.T) {
	tests := map[string]struct {
		arrange func() *table
		assert  func(t *testing.T, tb *table, got []domain.Question, err error)
	}{
		"short last page stops the scan": {
			arrange: func() *table { return newTable(7) },
			assert: func(t *testing.T, tb *table, got []domain.Question, err error) {
				require.NoError(t, err)
				assert.Len(t, got, 7)
				assert.Equal(t, []ListQuestionsRequest{
					{AfterID: "", Limit: 3},
					{AfterID: "q002", Limit: 3},
					{AfterID: "q005", Limit: 3},
				}, tb.reqs)
			},
		},

		"exact multiple of the page size ends on an empty page": {
			arrange: func() *table { return newTable(6) },
			assert: func(t *testing.T, tb *table, got []domain.Question, err error) {
				require.NoError(t, err)
				assert.Len(t, got, 6)
				require.Len(t, tb.reqs, 3)
				assert.Equal(t, "q005", tb.reqs[2].AfterID)
			},
		},

		"empty table": {
			arrange: func() *table { return newTable(0) },
			assert: func(t *testing.T, tb *table, got []domain.Question, err error) {
				require.NoError(t, err)
				assert.Empty(t, got)
				assert.Len(t, tb.reqs, 1)
			},
		},

		"failed page reports its cursor": {
			arrange: func() *table {
				tb := newTable(7)
				tb.fail = 2
				return tb
			},
			assert: func(t *testing.T, tb *table, got []domain.Question, err error) {
				assert.ErrorContains(t, err, `after "q002"`)
				assert.ErrorContains(t, err, "connection reset")
				assert.Nil(t, got)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tb := tt.arrange()
			got, err := loadPages(context.Background(), 3, tb.list)

			tt.assert(t, tb, got, err)
		})
	}
}

func TestNewRepository_DefaultPageSize(t *testing.T) {
	assert.Equal(t, defaultPageSize, NewRepository(RepositoryConfig{}).pageSize)
	assert.Equal(t, 50, NewRepository(RepositoryConfig{PageSize: 50}).pageSize)
}
