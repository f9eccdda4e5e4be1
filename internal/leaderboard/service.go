package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	retention       = 24 * time.Hour

	DefaultGlobalLimit = 100
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string

	// Clock stamps publish windows. Defaults to the real clock.
	Clock clockwork.Clock
}

// Service keeps a live leaderboard per session and an all-time leaderboard
// across finished sessions, both as Redis sorted sets.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	clock  clockwork.Clock
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		clock:  c.Clock,
	}

	s.eb.Subscribe(domain.EventNameRoundResolved, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventRoundResolved))
	})
	s.eb.Subscribe(domain.EventNameSessionFinished, func(ctx context.Context, e event.Event) error {
		return s.RecordSession(ctx, e.(domain.EventSessionFinished))
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns the leaderboard for a session, including all players and their points.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	entries, err := s.entries(ctx, s.getLeaderboardKey(req.SessionID), -1)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, errors.New(errors.KindNotFound, errors.WithMessagef("leaderboard not found: session=%s", req.SessionID))
	}

	return &domain.Leaderboard{
		SessionID: req.SessionID,
		Entries:   entries,
	}, nil
}

type GetGlobalLeaderboardRequest struct {
	Limit int
}

// GetGlobalLeaderboard returns the players with the most points over all finished sessions.
func (s *Service) GetGlobalLeaderboard(ctx context.Context, req GetGlobalLeaderboardRequest) (*domain.Leaderboard, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultGlobalLimit
	}

	entries, err := s.entries(ctx, s.getGlobalKey(), int64(req.Limit)-1)
	if err != nil {
		return nil, err
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

func (s *Service) entries(ctx context.Context, key string, stop int64) ([]domain.LeaderboardEntry, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Username: z.Member.(string),
			Score:    z.Score,
		})
	}

	return entries, nil
}

// UpdateLeaderboard overwrites the player's points in the session leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventRoundResolved) error {
	key := s.getLeaderboardKey(e.SessionID)

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{
			Score:  float64(e.Total),
			Member: e.Round.Player,
		})
		p.Expire(ctx, key, retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, e.SessionID)
}

// schedulePublishLeaderboard publishes the leaderboard changes at most once per
// interval. Rounds of many sessions resolve in a short time, so this keeps the
// number of published events down.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sessionID string) error {
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(sessionID), s.clock.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, sessionID)
}

func (s *Service) publishLeaderboard(ctx context.Context, sessionID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", sessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

// RecordSession writes the final points of a finished session and adds them to
// the all-time leaderboard. A session is counted once even if the event is
// delivered again.
func (s *Service) RecordSession(ctx context.Context, e domain.EventSessionFinished) error {
	ss := e.Session
	if len(ss.Ranking) == 0 {
		return nil
	}

	ok, err := s.redis.SetNX(ctx, s.getRecordedKey(ss.SessionID), 1, retention).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil
	}

	key := s.getLeaderboardKey(ss.SessionID)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, r := range ss.Ranking {
			p.ZAdd(ctx, key, redis.Z{Score: float64(r.Points), Member: r.Name})
			p.ZIncrBy(ctx, s.getGlobalKey(), float64(r.Points), r.Name)
		}
		p.Expire(ctx, key, retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	return s.publishLeaderboard(ctx, ss.SessionID)
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}

func (s *Service) getRecordedKey(session string) string {
	return fmt.Sprintf("%s:%s:recorded", s.prefix, session)
}

func (s *Service) getGlobalKey() string {
	return fmt.Sprintf("%s:global:leaderboard", s.prefix)
}
