package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/event"
	"github.com/victornm/quizbox/internal/leaderboard"
	"github.com/victornm/quizbox/internal/score"
	"github.com/victornm/quizbox/internal/session"
)

type Config struct {
	GRPC         *grpc.Server
	HTTP         gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Leaderboard  *leaderboard.Service
	Results      *score.Store
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qss *session.Service
	ls  *leaderboard.Service
	rs  *score.Store

	redis  Redis
	prefix string
}

// New registers the gRPC service, the HTTP routes and the pub/sub notifications.
// Any surface whose dependency is nil is left out.
func New(c Config) *API {
	a := &API{
		qss:    c.Session,
		ls:     c.Leaderboard,
		rs:     c.Results,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// gRPC APIs
	if c.GRPC != nil {
		c.GRPC.RegisterService(&sessionServiceDesc, a)
	}

	// HTTP APIs
	if c.HTTP != nil {
		a.registerRoutes(c.HTTP)
	}

	// Register event handlers
	if c.EventBus != nil && c.Redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
		c.EventBus.Subscribe(domain.EventNameSnapshotUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishSnapshotUpdated(ctx, e.(domain.EventSnapshotUpdated))
		})
	}

	return a
}
