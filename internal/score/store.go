package score

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/event"
)

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type StoreConfig struct {
	DB       DB
	EventBus *event.Bus
}

// Store writes finished sessions back to Postgres.
type Store struct {
	db DB
}

// NewStore creates the store and subscribes it to session.finished.
func NewStore(c StoreConfig) *Store {
	s := &Store{db: c.DB}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameSessionFinished, func(ctx context.Context, e event.Event) error {
			return s.SaveResult(ctx, e.(domain.EventSessionFinished).Session)
		})
	}

	return s
}

// SaveResult inserts the final ranking of a finished session. Saving the same
// session twice is a no-op.
func (s *Store) SaveResult(ctx context.Context, ss domain.Session) (err error) {
	if ss.State != domain.StateFinished {
		return fmt.Errorf("save result: session %s is %s", ss.SessionID, ss.State)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insSessionStmt = `INSERT INTO session_results (session_id, rounds_played, cycles, finished_at) VALUES ($1, $2, $3, $4);`
		insEntryStmt   = `INSERT INTO session_result_entries (session_id, username, position, score, completed_categories) VALUES ($1, $2, $3, $4, $5);`
	)

	_, err = tx.Exec(ctx, insSessionStmt, ss.SessionID, ss.RoundsPlayed, ss.Cycle, ss.FinishedAt)
	if isUniqueViolation(err) {
		slog.InfoContext(ctx, "score: result already saved", "session_id", ss.SessionID)
		_ = tx.Rollback(ctx)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert session result: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range ss.Ranking {
		batch.Queue(insEntryStmt, ss.SessionID, r.Name, r.Position, decimal.NewFromInt(int64(r.Points)), r.Completed)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert result entries: %w", err)
	}

	return tx.Commit(ctx)
}

const codeUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

type ListScoresRequest struct {
	SessionID string
}

// ListScores returns the saved ranking of a session, best first.
func (s *Store) ListScores(ctx context.Context, req ListScoresRequest) ([]domain.RankEntry, error) {
	const stmt = `
SELECT username, position, score, completed_categories
FROM session_result_entries
WHERE session_id = $1
ORDER BY position ASC;`

	rows, err := s.db.Query(ctx, stmt, req.SessionID)
	if err != nil {
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.RankEntry, error) {
		var (
			e     domain.RankEntry
			score decimal.Decimal
		)
		if err := r.Scan(&e.Name, &e.Position, &score, &e.Completed); err != nil {
			return domain.RankEntry{}, err
		}
		e.Points = int(score.IntPart())
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
